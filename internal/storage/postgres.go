package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refstream/refstream/internal/enrich"
	"github.com/refstream/refstream/internal/fetch"
)

// Schema for all persisted tables, including the phase ledger. Call
// PostgresStore.Init() at startup or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS vendors (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	website TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS candidates (
	id BIGSERIAL PRIMARY KEY,
	vendor_id BIGINT NOT NULL REFERENCES vendors(id),
	uri TEXT NOT NULL,
	discovered_at_page INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (vendor_id, uri)
);
CREATE TABLE IF NOT EXISTS raw_items (
	id BIGSERIAL PRIMARY KEY,
	vendor_id BIGINT NOT NULL REFERENCES vendors(id),
	uri TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	word_count INT NOT NULL DEFAULT 0,
	engine TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS enrichments (
	item_id BIGINT PRIMARY KEY REFERENCES raw_items(id),
	record JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS phase_ledger (
	uri TEXT NOT NULL,
	phase TEXT NOT NULL,
	status TEXT NOT NULL,
	attempt_count INT NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	result_ref TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (uri, phase)
);
CREATE INDEX IF NOT EXISTS idx_candidates_vendor ON candidates(vendor_id);
CREATE INDEX IF NOT EXISTS idx_raw_items_vendor ON raw_items(vendor_id);
CREATE INDEX IF NOT EXISTS idx_phase_ledger_status ON phase_ledger(phase, status);
`

// PostgresStore persists to PostgreSQL through a shared pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// Connect opens a pgx pool and verifies the database is reachable.
// The pool is shared between the store and the ledger.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the tables if they don't exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) UpsertVendor(ctx context.Context, name, website string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO vendors (name, website) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET website = EXCLUDED.website, updated_at = NOW()
		 RETURNING id`,
		name, website,
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) GetVendor(ctx context.Context, name string) (*Vendor, error) {
	var v Vendor
	err := s.db.QueryRow(ctx,
		`SELECT id, name, website FROM vendors WHERE name = $1`,
		name,
	).Scan(&v.ID, &v.Name, &v.Website)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) SaveCandidates(ctx context.Context, vendorID int64, cands []Candidate) (int64, error) {
	if len(cands) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range cands {
		batch.Queue(
			`INSERT INTO candidates (vendor_id, uri, discovered_at_page) VALUES ($1, $2, $3)
			 ON CONFLICT (vendor_id, uri) DO NOTHING`,
			vendorID, c.URI, c.Page)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range cands {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, vendorID int64) ([]Candidate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT uri, discovered_at_page FROM candidates WHERE vendor_id = $1 ORDER BY uri`,
		vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.URI, &c.Page); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertRawItem(ctx context.Context, vendorID int64, res *fetch.Result) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	// xmax is zero only on rows created by this statement, which
	// distinguishes a fresh insert from a refresh of an existing URI.
	err := s.db.QueryRow(ctx,
		`INSERT INTO raw_items (vendor_id, uri, title, payload, word_count, engine, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (uri) DO UPDATE SET
		   title = EXCLUDED.title, payload = EXCLUDED.payload, word_count = EXCLUDED.word_count,
		   engine = EXCLUDED.engine, fetched_at = EXCLUDED.fetched_at
		 RETURNING id, (xmax = 0)`,
		vendorID, res.URI, res.Title, res.Payload, res.WordCount, res.Engine, res.FetchedAt,
	).Scan(&id, &inserted)
	return id, inserted, err
}

func (s *PostgresStore) ListUnenriched(ctx context.Context, vendorID int64, limit int) ([]ItemRef, error) {
	return s.listRefs(ctx,
		`SELECT r.id, r.uri, r.payload
		 FROM raw_items r LEFT JOIN enrichments e ON e.item_id = r.id
		 WHERE r.vendor_id = $1 AND e.item_id IS NULL
		 ORDER BY r.id
		 LIMIT $2`,
		vendorID, limit)
}

func (s *PostgresStore) ListItems(ctx context.Context, vendorID int64, limit int) ([]ItemRef, error) {
	return s.listRefs(ctx,
		`SELECT id, uri, payload FROM raw_items
		 WHERE vendor_id = $1
		 ORDER BY id
		 LIMIT $2`,
		vendorID, limit)
}

func (s *PostgresStore) listRefs(ctx context.Context, sql string, args ...any) ([]ItemRef, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemRef
	for rows.Next() {
		var it ItemRef
		if err := rows.Scan(&it.ID, &it.URI, &it.Payload); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ApplyEnrichment merges rec into the stored record under a row lock,
// so two enrichment runs cannot clobber each other's fields.
func (s *PostgresStore) ApplyEnrichment(ctx context.Context, itemID int64, rec *enrich.Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing *enrich.Record
	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT record FROM enrichments WHERE item_id = $1 FOR UPDATE`,
		itemID,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return err
	default:
		existing = &enrich.Record{}
		if err := json.Unmarshal(raw, existing); err != nil {
			return fmt.Errorf("corrupt enrichment record for item %d: %w", itemID, err)
		}
	}

	payload, err := json.Marshal(enrich.Merge(existing, rec))
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO enrichments (item_id, record) VALUES ($1, $2)
		 ON CONFLICT (item_id) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`,
		itemID, payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
