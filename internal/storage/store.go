// Package storage is the system of record for vendors, discovered
// candidates, raw item payloads, and enrichment records. Every write
// is an idempotent merge keyed on natural identity, so rerunning a
// phase never duplicates rows.
package storage

import (
	"context"
	"time"

	"github.com/refstream/refstream/internal/enrich"
	"github.com/refstream/refstream/internal/fetch"
)

// Vendor is one configured source, persisted for referential
// integrity.
type Vendor struct {
	ID      int64
	Name    string
	Website string
}

// Candidate is a discovered item URI awaiting fetch.
type Candidate struct {
	URI  string
	Page int
}

// RawItem is one fetched reference document.
type RawItem struct {
	ID        int64
	VendorID  int64
	URI       string
	Title     string
	Payload   string
	WordCount int
	Engine    string
	FetchedAt time.Time
}

// ItemRef carries what the classifier needs for one item.
type ItemRef struct {
	ID      int64
	URI     string
	Payload string
}

// Store is the persistence collaborator. Implementations dedupe by
// URI and merge on conflict.
type Store interface {
	// UpsertVendor registers the vendor and returns its id. Reruns
	// update the website in place.
	UpsertVendor(ctx context.Context, name, website string) (int64, error)

	// GetVendor returns the vendor by name, or nil when unknown.
	GetVendor(ctx context.Context, name string) (*Vendor, error)

	// SaveCandidates records discovered URIs, ignoring ones already
	// known for the vendor. Returns how many were new.
	SaveCandidates(ctx context.Context, vendorID int64, cands []Candidate) (int64, error)

	// ListCandidates returns the vendor's known candidates ordered by
	// URI.
	ListCandidates(ctx context.Context, vendorID int64) ([]Candidate, error)

	// UpsertRawItem stores a fetch result. inserted is false when the
	// URI was already present; the stored copy is refreshed either
	// way.
	UpsertRawItem(ctx context.Context, vendorID int64, res *fetch.Result) (id int64, inserted bool, err error)

	// ListUnenriched returns up to limit of the vendor's items that
	// have no enrichment yet, oldest first.
	ListUnenriched(ctx context.Context, vendorID int64, limit int) ([]ItemRef, error)

	// ListItems returns up to limit of the vendor's items, enriched
	// or not, oldest first. Used when a run forces re-enrichment.
	ListItems(ctx context.Context, vendorID int64, limit int) ([]ItemRef, error)

	// ApplyEnrichment merges rec into the item's enrichment record.
	ApplyEnrichment(ctx context.Context, itemID int64, rec *enrich.Record) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
