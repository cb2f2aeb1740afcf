// Package ledger tracks per-(uri, phase) completion so every pipeline
// phase is safely re-runnable. Claims are atomic: of two workers
// racing for the same record, exactly one wins.
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Status is the lifecycle state of one (uri, phase) record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is the ledger's unit of truth.
type Record struct {
	URI           string
	Phase         string
	Status        Status
	AttemptCount  int
	LastAttemptAt time.Time
	ResultRef     string
	LastError     string
}

// Ledger is the idempotency store consulted before and after every
// per-item phase execution. Implementations must make TryBegin an
// atomic claim.
type Ledger interface {
	// IsComplete reports whether the phase already ran to completion
	// for uri. Unknown records are not complete.
	IsComplete(ctx context.Context, uri, phase string) (bool, error)

	// TryBegin atomically claims (uri, phase) for processing. It
	// returns false when the record is already completed or actively
	// claimed by another worker. Abandoned in_progress claims older
	// than the stale window are reclaimable.
	TryBegin(ctx context.Context, uri, phase string) (bool, error)

	// MarkComplete records that the phase's side effect happened and
	// was acknowledged. resultRef optionally points at the artifact.
	MarkComplete(ctx context.Context, uri, phase, resultRef string) error

	// MarkFailed releases the claim with a failure reason; the record
	// becomes claimable again on the next run.
	MarkFailed(ctx context.Context, uri, phase, reason string) error

	// Reset flips completed records back to pending for the given
	// uris, returning how many flipped. Used by forced reruns.
	Reset(ctx context.Context, phase string, uris []string) (int64, error)

	// Get returns the record for (uri, phase), or nil when none
	// exists.
	Get(ctx context.Context, uri, phase string) (*Record, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// ConflictError reports a lost claim race inside an implementation.
// It is resolved by retrying the atomic claim and never escapes the
// package.
type ConflictError struct {
	URI   string
	Phase string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("claim conflict on (%s, %s)", e.URI, e.Phase)
}

// DefaultStaleAfter is the takeover window for abandoned in_progress
// claims.
const DefaultStaleAfter = 30 * time.Minute
