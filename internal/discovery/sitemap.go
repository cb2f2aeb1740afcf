package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/fetch"
)

const (
	defaultMaxSitemaps       = 10
	defaultSitemapTimeout    = 10 * time.Second
	defaultSitemapAttempts   = 3
	defaultSitemapBackoff    = 500 * time.Millisecond
	defaultSitemapBackoffCap = 5 * time.Second
	maxSitemapBytes          = 32 << 20
)

// SitemapOptions configures manifest expansion.
type SitemapOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxSitemaps int
	Retry       fetch.RetryPolicy
}

// SitemapClient fetches sitemap manifests over plain HTTP. Index
// files are followed one level deep, bounded by MaxSitemaps.
type SitemapClient struct {
	client      *http.Client
	userAgent   string
	maxSitemaps int
	retry       fetch.RetryPolicy
	log         *zap.Logger
}

// NewSitemapClient builds a manifest client.
func NewSitemapClient(opts SitemapOptions, log *zap.Logger) *SitemapClient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSitemapTimeout
	}
	if opts.MaxSitemaps <= 0 {
		opts.MaxSitemaps = defaultMaxSitemaps
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = defaultSitemapAttempts
	}
	if opts.Retry.Base <= 0 {
		opts.Retry.Base = defaultSitemapBackoff
	}
	if opts.Retry.Cap <= 0 {
		opts.Retry.Cap = defaultSitemapBackoffCap
	}
	return &SitemapClient{
		client:      &http.Client{Timeout: opts.Timeout},
		userAgent:   opts.UserAgent,
		maxSitemaps: opts.MaxSitemaps,
		retry:       opts.Retry,
		log:         log,
	}
}

// sitemapDoc covers both manifest shapes; namespaces are matched by
// local name.
type sitemapDoc struct {
	Sitemaps []string `xml:"sitemap>loc"`
	Entries  []string `xml:"url>loc"`
}

var locPattern = regexp.MustCompile(`(?is)<loc>(.*?)</loc>`)

// Expand fetches the manifest at uri and returns every entry it
// names. An index is followed into its child sitemaps.
func (c *SitemapClient) Expand(ctx context.Context, uri string) ([]string, error) {
	body, err := c.get(ctx, uri)
	if err != nil {
		return nil, err
	}

	children, entries := parseSitemap(body)
	if len(children) == 0 {
		return entries, nil
	}

	c.log.Debug("sitemap index found",
		zap.String("uri", uri),
		zap.Int("children", len(children)))
	if len(children) > c.maxSitemaps {
		children = children[:c.maxSitemaps]
	}
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		childBody, err := c.get(ctx, child)
		if err != nil {
			c.log.Warn("child sitemap fetch failed",
				zap.String("uri", child),
				zap.Error(err))
			continue
		}
		_, childEntries := parseSitemap(childBody)
		entries = append(entries, childEntries...)
	}
	return entries, nil
}

// parseSitemap splits a manifest into child sitemap locations and
// page entries. Malformed XML falls back to scraping loc tags.
func parseSitemap(body []byte) (children, entries []string) {
	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		for _, m := range locPattern.FindAllStringSubmatch(string(body), -1) {
			if loc := strings.TrimSpace(m[1]); loc != "" {
				entries = append(entries, loc)
			}
		}
		return nil, entries
	}
	return trimAll(doc.Sitemaps), trimAll(doc.Entries)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// get fetches uri, retrying transient failures with the client's
// backoff policy.
func (c *SitemapClient) get(ctx context.Context, uri string) ([]byte, error) {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retry.Backoff(attempt - 1)):
			}
		}
		data, retryable, err := c.getOnce(ctx, uri)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		c.log.Debug("sitemap fetch retrying",
			zap.String("uri", uri),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

// getOnce performs one manifest round trip, transparently
// decompressing gzipped bodies. The bool reports whether a failure is
// worth another attempt.
func (c *SitemapClient) getOnce(ctx context.Context, uri string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, false, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("sitemap %s: status %d", uri, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, true, err
	}
	// Child sitemaps are often served as .xml.gz files rather than
	// with transport compression.
	if len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, err
		}
		defer zr.Close()
		if data, err = io.ReadAll(io.LimitReader(zr, maxSitemapBytes)); err != nil {
			return nil, false, err
		}
	}
	return data, false, nil
}
