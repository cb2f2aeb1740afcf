package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cachedURI   = "https://vendor.example/customers/acme"
	cachedPhase = "fetch"
)

var (
	_ Ledger          = (*Cached)(nil)
	_ completionCache = (*fakeRedis)(nil)
)

// fakeRedis backs the completion cache with a plain map so the layer
// can be exercised without a server.
type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]string
	failing bool

	existsCalls int
	setCalls    int
	delCalls    int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]string)}
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if f.failing {
		return redis.NewIntResult(0, errors.New("redis: connection refused"))
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.failing {
		return redis.NewStatusResult("", errors.New("redis: connection refused"))
	}
	f.keys[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delCalls++
	if f.failing {
		return redis.NewIntResult(0, errors.New("redis: connection refused"))
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// countingLedger tracks which calls reach the authoritative ledger.
type countingLedger struct {
	*Memory
	isCompleteCalls int
	tryBeginCalls   int
}

func (c *countingLedger) IsComplete(ctx context.Context, uri, phase string) (bool, error) {
	c.isCompleteCalls++
	return c.Memory.IsComplete(ctx, uri, phase)
}

func (c *countingLedger) TryBegin(ctx context.Context, uri, phase string) (bool, error) {
	c.tryBeginCalls++
	return c.Memory.TryBegin(ctx, uri, phase)
}

type faultyLedger struct {
	Ledger
	markCompleteErr error
}

func (f *faultyLedger) MarkComplete(context.Context, string, string, string) error {
	return f.markCompleteErr
}

func TestCached_HitSkipsAuthoritativeLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	fake.keys[cacheKey(cachedURI, cachedPhase)] = "1"
	inner := &countingLedger{Memory: NewMemory(0)}
	c := &Cached{inner: inner, cache: fake, ttl: time.Hour}

	done, err := c.IsComplete(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, inner.isCompleteCalls, "hits must not touch the database")
}

func TestCached_MissFallsThroughAndPrimes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	mem := NewMemory(0)
	_, err := mem.TryBegin(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	require.NoError(t, mem.MarkComplete(ctx, cachedURI, cachedPhase, "item-1"))
	inner := &countingLedger{Memory: mem}
	c := &Cached{inner: inner, cache: fake, ttl: time.Hour}

	done, err := c.IsComplete(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, inner.isCompleteCalls)
	assert.Contains(t, fake.keys, cacheKey(cachedURI, cachedPhase), "completions prime the cache")

	done, err = c.IsComplete(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, inner.isCompleteCalls, "second check is served from the cache")
}

func TestCached_IncompleteIsNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	c := &Cached{inner: NewMemory(0), cache: fake, ttl: time.Hour}

	done, err := c.IsComplete(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, fake.setCalls)
	assert.Empty(t, fake.keys)
}

func TestCached_RedisFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	fake.failing = true
	c := &Cached{inner: NewMemory(0), cache: fake, ttl: time.Hour}

	require.NoError(t, c.MarkComplete(ctx, cachedURI, cachedPhase, "item-1"))

	done, err := c.IsComplete(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	assert.True(t, done, "a dead cache falls through to the ledger")
}

func TestCached_MarkCompleteWritesThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	mem := NewMemory(0)
	c := &Cached{inner: mem, cache: fake, ttl: time.Hour}

	require.NoError(t, c.MarkComplete(ctx, cachedURI, cachedPhase, "item-1"))

	rec, err := mem.Get(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Contains(t, fake.keys, cacheKey(cachedURI, cachedPhase))
}

func TestCached_MarkCompleteInnerErrorSkipsCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	inner := &faultyLedger{Ledger: NewMemory(0), markCompleteErr: errors.New("deadlock detected")}
	c := &Cached{inner: inner, cache: fake, ttl: time.Hour}

	err := c.MarkComplete(ctx, cachedURI, cachedPhase, "item-1")
	require.Error(t, err)
	assert.Equal(t, 0, fake.setCalls, "failed writes must not mark completion")
}

func TestCached_MarkFailedInvalidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	c := &Cached{inner: NewMemory(0), cache: fake, ttl: time.Hour}

	require.NoError(t, c.MarkComplete(ctx, cachedURI, cachedPhase, ""))
	require.Contains(t, fake.keys, cacheKey(cachedURI, cachedPhase))

	require.NoError(t, c.MarkFailed(ctx, cachedURI, cachedPhase, "status 503"))
	assert.NotContains(t, fake.keys, cacheKey(cachedURI, cachedPhase), "failures evict the completion marker")
}

func TestCached_ResetInvalidatesGivenURIs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	c := &Cached{inner: NewMemory(0), cache: fake, ttl: time.Hour}

	other := "https://vendor.example/customers/globex"
	require.NoError(t, c.MarkComplete(ctx, cachedURI, cachedPhase, ""))
	require.NoError(t, c.MarkComplete(ctx, other, cachedPhase, ""))

	n, err := c.Reset(ctx, cachedPhase, []string{cachedURI})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotContains(t, fake.keys, cacheKey(cachedURI, cachedPhase))
	assert.Contains(t, fake.keys, cacheKey(other, cachedPhase), "unrelated entries survive a scoped reset")
}

func TestCached_TryBeginBypassesCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeRedis()
	// A marker left over from an earlier run must not block a claim.
	fake.keys[cacheKey(cachedURI, cachedPhase)] = "1"
	inner := &countingLedger{Memory: NewMemory(0)}
	c := &Cached{inner: inner, cache: fake, ttl: time.Hour}

	ok, err := c.TryBegin(ctx, cachedURI, cachedPhase)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, inner.tryBeginCalls)
	assert.Equal(t, 0, fake.existsCalls, "claims never consult the cache")
}

func TestCached_DefaultTTL(t *testing.T) {
	t.Parallel()

	c := NewCached(NewMemory(0), nil, 0)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}
