// Package enrich turns raw item text into a structured enrichment
// record through a pluggable classifier. The HTTP implementation calls
// an external classification service; the static implementation covers
// offline runs with rule-based heuristics.
package enrich

import (
	"context"
	"errors"
	"fmt"
)

// Record is the structured output of classifying one item.
type Record struct {
	CustomerName string    `json:"customer_name"`
	Industry     string    `json:"industry"`
	CompanySize  string    `json:"company_size"`
	Region       string    `json:"region"`
	Country      string    `json:"country"`
	UseCases     []string  `json:"use_cases"`
	Outcomes     []Outcome `json:"outcomes"`
	Personas     []Persona `json:"personas"`
	TechStack    []string  `json:"tech_stack"`
	QuotedText   string    `json:"quoted_text"`
	Summary      string    `json:"summary"`
}

// Outcome is a business result claimed by the item.
type Outcome struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Metric      string `json:"metric"`
}

// Persona is a person quoted or featured in the item.
type Persona struct {
	Title     string `json:"title"`
	Name      string `json:"name"`
	Seniority string `json:"seniority"`
}

// Classifier produces an enrichment record for one item.
type Classifier interface {
	Classify(ctx context.Context, uri, text string) (*Record, error)
}

// ClassificationError means the classifier could not produce a usable
// record. The item stays unenriched and is retried on a later run.
type ClassificationError struct {
	URI    string
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed for %s: %s: %v", e.URI, e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed for %s: %s", e.URI, e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// IsClassification reports whether err is a classifier failure.
func IsClassification(err error) bool {
	var c *ClassificationError
	return errors.As(err, &c)
}
