package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstream/refstream/internal/enrich"
	"github.com/refstream/refstream/internal/fetch"
	"github.com/refstream/refstream/internal/storage"
)

var _ storage.Store = (*storage.MemoryStore)(nil)

func result(uri string, words int) *fetch.Result {
	return &fetch.Result{
		URI:       uri,
		Title:     "A Story",
		Payload:   "some extracted text",
		WordCount: words,
		Engine:    fetch.EnginePrimary,
		FetchedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_Vendors(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := t.Context()

	id, err := s.UpsertVendor(ctx, "acme", "https://acme.example")
	require.NoError(t, err)

	again, err := s.UpsertVendor(ctx, "acme", "https://www.acme.example")
	require.NoError(t, err)
	assert.Equal(t, id, again, "re-registering a vendor keeps its id")

	v, err := s.GetVendor(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "https://www.acme.example", v.Website)

	missing, err := s.GetVendor(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_SaveCandidates(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := t.Context()
	vendorID, err := s.UpsertVendor(ctx, "acme", "https://acme.example")
	require.NoError(t, err)

	n, err := s.SaveCandidates(ctx, vendorID, []storage.Candidate{
		{URI: "https://acme.example/customers/beta", Page: 1},
		{URI: "https://acme.example/customers/alpha", Page: 0},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.SaveCandidates(ctx, vendorID, []storage.Candidate{
		{URI: "https://acme.example/customers/alpha", Page: 0},
		{URI: "https://acme.example/customers/gamma", Page: 2},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only gamma is new")

	cands, err := s.ListCandidates(ctx, vendorID)
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, "https://acme.example/customers/alpha", cands[0].URI, "listing is ordered by URI")
}

func TestMemoryStore_UpsertRawItem(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := t.Context()

	id, inserted, err := s.UpsertRawItem(ctx, 1, result("https://acme.example/customers/alpha", 200))
	require.NoError(t, err)
	assert.True(t, inserted)

	refreshed := result("https://acme.example/customers/alpha", 250)
	refreshed.Payload = "updated text"
	sameID, inserted, err := s.UpsertRawItem(ctx, 1, refreshed)
	require.NoError(t, err)
	assert.False(t, inserted, "same URI refreshes in place")
	assert.Equal(t, id, sameID)

	otherID, inserted, err := s.UpsertRawItem(ctx, 1, result("https://acme.example/customers/beta", 150))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, id, otherID)
}

func TestMemoryStore_ListUnenriched(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := t.Context()

	first, _, err := s.UpsertRawItem(ctx, 1, result("https://acme.example/customers/alpha", 200))
	require.NoError(t, err)
	second, _, err := s.UpsertRawItem(ctx, 1, result("https://acme.example/customers/beta", 200))
	require.NoError(t, err)
	third, _, err := s.UpsertRawItem(ctx, 1, result("https://acme.example/customers/gamma", 200))
	require.NoError(t, err)

	require.NoError(t, s.ApplyEnrichment(ctx, second, &enrich.Record{CustomerName: "Beta"}))

	items, err := s.ListUnenriched(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first, items[0].ID, "oldest first")
	assert.Equal(t, third, items[1].ID)

	items, err = s.ListUnenriched(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first, items[0].ID)

	all, err := s.ListItems(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3, "ListItems includes enriched items")

	other, err := s.ListUnenriched(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, other, "listing is scoped to the vendor")
}

func TestMemoryStore_ApplyEnrichmentMerges(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := t.Context()
	id, _, err := s.UpsertRawItem(ctx, 1, result("https://acme.example/customers/alpha", 200))
	require.NoError(t, err)

	require.NoError(t, s.ApplyEnrichment(ctx, id, &enrich.Record{
		CustomerName: "Alpha",
		TechStack:    []string{"AWS"},
	}))
	require.NoError(t, s.ApplyEnrichment(ctx, id, &enrich.Record{
		Region:    "EMEA",
		TechStack: []string{"Kafka"},
	}))

	rec := s.Enrichment(id)
	require.NotNil(t, rec)
	assert.Equal(t, "Alpha", rec.CustomerName)
	assert.Equal(t, "EMEA", rec.Region)
	assert.Equal(t, []string{"AWS", "Kafka"}, rec.TechStack)

	assert.Error(t, s.ApplyEnrichment(ctx, 999, &enrich.Record{}), "unknown item is rejected")
}
