package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the authoritative ledger. The claim is a single
// conditional upsert, so of two concurrent workers exactly one sees a
// row come back.
type Postgres struct {
	db    *pgxpool.Pool
	stale time.Duration
}

// NewPostgres wraps an existing pool. staleAfter bounds how long an
// in_progress claim blocks takeover.
func NewPostgres(db *pgxpool.Pool, staleAfter time.Duration) *Postgres {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Postgres{db: db, stale: staleAfter}
}

func (p *Postgres) IsComplete(ctx context.Context, uri, phase string) (bool, error) {
	var status string
	err := p.db.QueryRow(ctx,
		`SELECT status FROM phase_ledger WHERE uri = $1 AND phase = $2`,
		uri, phase,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Status(status) == StatusCompleted, nil
}

func (p *Postgres) TryBegin(ctx context.Context, uri, phase string) (bool, error) {
	for attempt := 0; ; attempt++ {
		ok, err := p.claim(ctx, uri, phase)
		if err == nil {
			return ok, nil
		}
		retry, err := resolveClaim(err, attempt)
		if !retry {
			return false, err
		}
	}
}

// resolveClaim maps a failed claim attempt onto the retry decision.
// Serialization conflicts get one immediate retry; a repeated conflict
// means another worker owns the record, which is a lost claim, not an
// error the caller can act on.
func resolveClaim(err error, attempt int) (bool, error) {
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return false, err
	}
	return attempt == 0, nil
}

func (p *Postgres) claim(ctx context.Context, uri, phase string) (bool, error) {
	var attempts int
	err := p.db.QueryRow(ctx,
		`INSERT INTO phase_ledger (uri, phase, status, attempt_count, last_attempt_at)
		 VALUES ($1, $2, 'in_progress', 1, NOW())
		 ON CONFLICT (uri, phase) DO UPDATE SET
		   status = 'in_progress',
		   attempt_count = phase_ledger.attempt_count + 1,
		   last_attempt_at = NOW()
		 WHERE phase_ledger.status IN ('pending', 'failed')
		    OR (phase_ledger.status = 'in_progress'
		        AND phase_ledger.last_attempt_at < NOW() - make_interval(secs => $3))
		 RETURNING attempt_count`,
		uri, phase, p.stale.Seconds(),
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another worker holds the claim, or the phase already
		// completed.
		return false, nil
	}
	if serializationFailure(err) {
		return false, &ConflictError{URI: uri, Phase: phase}
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// serializationFailure matches the two Postgres error classes a
// concurrent upsert can lose on: serialization_failure and
// deadlock_detected.
func serializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func (p *Postgres) MarkComplete(ctx context.Context, uri, phase, resultRef string) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO phase_ledger (uri, phase, status, attempt_count, last_attempt_at, result_ref)
		 VALUES ($1, $2, 'completed', 1, NOW(), $3)
		 ON CONFLICT (uri, phase) DO UPDATE SET
		   status = 'completed',
		   result_ref = EXCLUDED.result_ref,
		   last_error = '',
		   last_attempt_at = NOW()`,
		uri, phase, resultRef)
	return err
}

func (p *Postgres) MarkFailed(ctx context.Context, uri, phase, reason string) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO phase_ledger (uri, phase, status, attempt_count, last_attempt_at, last_error)
		 VALUES ($1, $2, 'failed', 1, NOW(), $3)
		 ON CONFLICT (uri, phase) DO UPDATE SET
		   status = 'failed',
		   last_error = EXCLUDED.last_error,
		   last_attempt_at = NOW()`,
		uri, phase, reason)
	return err
}

func (p *Postgres) Reset(ctx context.Context, phase string, uris []string) (int64, error) {
	tag, err := p.db.Exec(ctx,
		`UPDATE phase_ledger SET status = 'pending'
		 WHERE phase = $1 AND uri = ANY($2) AND status = 'completed'`,
		phase, uris)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Get(ctx context.Context, uri, phase string) (*Record, error) {
	var rec Record
	var status string
	err := p.db.QueryRow(ctx,
		`SELECT uri, phase, status, attempt_count, last_attempt_at, result_ref, last_error
		 FROM phase_ledger WHERE uri = $1 AND phase = $2`,
		uri, phase,
	).Scan(&rec.URI, &rec.Phase, &status, &rec.AttemptCount, &rec.LastAttemptAt, &rec.ResultRef, &rec.LastError)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
