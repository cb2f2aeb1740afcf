package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/refstream/refstream/internal/enrich"
	"github.com/refstream/refstream/internal/fetch"
)

// MemoryStore is an in-process Store for tests and database-less dry
// runs. State does not survive the process.
type MemoryStore struct {
	mu           sync.Mutex
	vendors      map[string]*Vendor
	candidates   map[int64]map[string]Candidate
	items        map[int64]*RawItem
	itemsByURI   map[string]int64
	enrichments  map[int64]*enrich.Record
	nextVendorID int64
	nextItemID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vendors:     make(map[string]*Vendor),
		candidates:  make(map[int64]map[string]Candidate),
		items:       make(map[int64]*RawItem),
		itemsByURI:  make(map[string]int64),
		enrichments: make(map[int64]*enrich.Record),
	}
}

func (m *MemoryStore) UpsertVendor(_ context.Context, name, website string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.vendors[name]; ok {
		v.Website = website
		return v.ID, nil
	}
	m.nextVendorID++
	m.vendors[name] = &Vendor{ID: m.nextVendorID, Name: name, Website: website}
	return m.nextVendorID, nil
}

func (m *MemoryStore) GetVendor(_ context.Context, name string) (*Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vendors[name]
	if !ok {
		return nil, nil
	}
	c := *v
	return &c, nil
}

func (m *MemoryStore) SaveCandidates(_ context.Context, vendorID int64, cands []Candidate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := m.candidates[vendorID]
	if known == nil {
		known = make(map[string]Candidate)
		m.candidates[vendorID] = known
	}

	var inserted int64
	for _, c := range cands {
		if _, ok := known[c.URI]; ok {
			continue
		}
		known[c.URI] = c
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) ListCandidates(_ context.Context, vendorID int64) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Candidate, 0, len(m.candidates[vendorID]))
	for _, c := range m.candidates[vendorID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

func (m *MemoryStore) UpsertRawItem(_ context.Context, vendorID int64, res *fetch.Result) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.itemsByURI[res.URI]; ok {
		it := m.items[id]
		it.Title = res.Title
		it.Payload = res.Payload
		it.WordCount = res.WordCount
		it.Engine = res.Engine
		it.FetchedAt = res.FetchedAt
		return id, false, nil
	}

	m.nextItemID++
	m.items[m.nextItemID] = &RawItem{
		ID:        m.nextItemID,
		VendorID:  vendorID,
		URI:       res.URI,
		Title:     res.Title,
		Payload:   res.Payload,
		WordCount: res.WordCount,
		Engine:    res.Engine,
		FetchedAt: res.FetchedAt,
	}
	m.itemsByURI[res.URI] = m.nextItemID
	return m.nextItemID, true, nil
}

func (m *MemoryStore) ListUnenriched(_ context.Context, vendorID int64, limit int) ([]ItemRef, error) {
	return m.listRefs(vendorID, limit, false), nil
}

func (m *MemoryStore) ListItems(_ context.Context, vendorID int64, limit int) ([]ItemRef, error) {
	return m.listRefs(vendorID, limit, true), nil
}

func (m *MemoryStore) listRefs(vendorID int64, limit int, includeEnriched bool) []ItemRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.items))
	for id, it := range m.items {
		if it.VendorID != vendorID {
			continue
		}
		if _, done := m.enrichments[id]; done && !includeEnriched {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]ItemRef, 0, len(ids))
	for _, id := range ids {
		it := m.items[id]
		out = append(out, ItemRef{ID: it.ID, URI: it.URI, Payload: it.Payload})
	}
	return out
}

func (m *MemoryStore) ApplyEnrichment(_ context.Context, itemID int64, rec *enrich.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[itemID]; !ok {
		return fmt.Errorf("unknown item %d", itemID)
	}
	m.enrichments[itemID] = enrich.Merge(m.enrichments[itemID], rec)
	return nil
}

// Enrichment returns the merged record for an item, or nil. Test
// helper; the SQL store reads enrichments only through joins.
func (m *MemoryStore) Enrichment(itemID int64) *enrich.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.enrichments[itemID]
	if rec == nil {
		return nil
	}
	c := *rec
	return &c
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
