// Package fetch retrieves item content through a dual-tier engine: a
// cheap HTTP tier tried first, a headless browser tier used when the
// cheap tier is blocked, low quality, or exhausted.
package fetch

import (
	"context"
	"time"
)

// Engine tiers recorded on results.
const (
	EnginePrimary   = "primary"
	EngineSecondary = "secondary"
)

// Result is the outcome of one successful fetch.
type Result struct {
	URI       string    `json:"uri"`
	Title     string    `json:"title"`
	Payload   string    `json:"payload"`
	HTML      string    `json:"-"`
	WordCount int       `json:"word_count"`
	Engine    string    `json:"engine"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fetcher retrieves a single URI. Implementations classify failures
// into the error kinds in this package.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (*Result, error)
}
