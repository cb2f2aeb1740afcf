package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "ledger:"

// DefaultCacheTTL bounds how long a completion marker lives in Redis.
const DefaultCacheTTL = 48 * time.Hour

// completionCache is the slice of the go-redis client the cache layer
// touches.
type completionCache interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached layers a Redis completion cache over the authoritative
// ledger so hot IsComplete checks skip the database. The cache is
// advisory: misses fall through, and cache write failures are
// ignored.
type Cached struct {
	inner Ledger
	cache completionCache
	ttl   time.Duration
}

// NewCached wraps inner with a completion cache.
func NewCached(inner Ledger, client *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{inner: inner, cache: client, ttl: ttl}
}

// cacheKey hashes the uri so arbitrary characters cannot leak into
// Redis key space.
func cacheKey(uri, phase string) string {
	h := sha256.Sum256([]byte(uri))
	return fmt.Sprintf("%s%s:%s", cacheKeyPrefix, phase, hex.EncodeToString(h[:]))
}

func (c *Cached) IsComplete(ctx context.Context, uri, phase string) (bool, error) {
	val, err := c.cache.Exists(ctx, cacheKey(uri, phase)).Result()
	if err == nil && val == 1 {
		return true, nil
	}

	done, err := c.inner.IsComplete(ctx, uri, phase)
	if err != nil {
		return false, err
	}
	if done {
		c.cache.Set(ctx, cacheKey(uri, phase), "1", c.ttl)
	}
	return done, nil
}

func (c *Cached) TryBegin(ctx context.Context, uri, phase string) (bool, error) {
	// Claims are always authoritative.
	return c.inner.TryBegin(ctx, uri, phase)
}

func (c *Cached) MarkComplete(ctx context.Context, uri, phase, resultRef string) error {
	if err := c.inner.MarkComplete(ctx, uri, phase, resultRef); err != nil {
		return err
	}
	c.cache.Set(ctx, cacheKey(uri, phase), "1", c.ttl)
	return nil
}

func (c *Cached) MarkFailed(ctx context.Context, uri, phase, reason string) error {
	if err := c.inner.MarkFailed(ctx, uri, phase, reason); err != nil {
		return err
	}
	c.cache.Del(ctx, cacheKey(uri, phase))
	return nil
}

func (c *Cached) Reset(ctx context.Context, phase string, uris []string) (int64, error) {
	n, err := c.inner.Reset(ctx, phase, uris)
	if err != nil {
		return n, err
	}
	if len(uris) > 0 {
		keys := make([]string, len(uris))
		for i, uri := range uris {
			keys[i] = cacheKey(uri, phase)
		}
		c.cache.Del(ctx, keys...)
	}
	return n, nil
}

func (c *Cached) Get(ctx context.Context, uri, phase string) (*Record, error) {
	return c.inner.Get(ctx, uri, phase)
}

func (c *Cached) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}
