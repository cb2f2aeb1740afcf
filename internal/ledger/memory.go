package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process ledger for tests and database-less dry
// runs. State does not survive the process.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	stale   time.Duration
}

// NewMemory builds an empty in-process ledger.
func NewMemory(staleAfter time.Duration) *Memory {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Memory{records: make(map[string]*Record), stale: staleAfter}
}

func key(uri, phase string) string { return uri + "|" + phase }

func (m *Memory) IsComplete(_ context.Context, uri, phase string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(uri, phase)]
	return ok && rec.Status == StatusCompleted, nil
}

func (m *Memory) TryBegin(_ context.Context, uri, phase string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := m.records[key(uri, phase)]
	if !ok {
		m.records[key(uri, phase)] = &Record{
			URI:           uri,
			Phase:         phase,
			Status:        StatusInProgress,
			AttemptCount:  1,
			LastAttemptAt: now,
		}
		return true, nil
	}

	switch rec.Status {
	case StatusCompleted:
		return false, nil
	case StatusInProgress:
		if now.Sub(rec.LastAttemptAt) < m.stale {
			return false, nil
		}
		// Abandoned claim; take it over.
	case StatusPending, StatusFailed:
	}

	rec.Status = StatusInProgress
	rec.AttemptCount++
	rec.LastAttemptAt = now
	return true, nil
}

func (m *Memory) MarkComplete(_ context.Context, uri, phase, resultRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.ensure(uri, phase)
	rec.Status = StatusCompleted
	rec.ResultRef = resultRef
	rec.LastError = ""
	rec.LastAttemptAt = time.Now().UTC()
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, uri, phase, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.ensure(uri, phase)
	rec.Status = StatusFailed
	rec.LastError = reason
	rec.LastAttemptAt = time.Now().UTC()
	return nil
}

func (m *Memory) Reset(_ context.Context, phase string, uris []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, uri := range uris {
		if rec, ok := m.records[key(uri, phase)]; ok && rec.Status == StatusCompleted {
			rec.Status = StatusPending
			n++
		}
	}
	return n, nil
}

func (m *Memory) Get(_ context.Context, uri, phase string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(uri, phase)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) ensure(uri, phase string) *Record {
	rec, ok := m.records[key(uri, phase)]
	if !ok {
		rec = &Record{URI: uri, Phase: phase}
		m.records[key(uri, phase)] = rec
	}
	return rec
}
