// Package discovery turns vendor profiles into candidate item URIs,
// either by walking paginated listing pages or by expanding a sitemap
// manifest. Completion detection is shared across pagination styles.
package discovery

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/vendors"
)

// Termination reasons recorded on every finished discovery.
const (
	ReasonEmpty       = "empty"
	ReasonLoop        = "loop-detected"
	ReasonManifest    = "manifest"
	ReasonMaxPages    = "max-pages"
	ReasonSafetyLimit = "safety-limit"
)

// Candidate is one discovered item URI. Candidates are never mutated
// after discovery and are unique per vendor.
type Candidate struct {
	URI    string
	Vendor string
	// DiscoveredAtPage is the zero-based listing page the URI first
	// appeared on, or -1 for manifest-discovered items.
	DiscoveredAtPage int
}

// Result is the outcome of one vendor's discovery.
type Result struct {
	Candidates []Candidate
	Reason     string
	Pages      int
}

// Lister fetches a single listing page and returns its raw markup.
// Implementations own per-page retries; the runner treats any error
// as an empty page so a flaky listing cannot wedge discovery.
type Lister interface {
	Listing(ctx context.Context, uri string) (string, error)
}

// Options bound the shared completion detector.
type Options struct {
	// EmptyThreshold stops discovery after this many consecutive
	// empty listing pages.
	EmptyThreshold int
	// SafetyLimit is the hard page ceiling regardless of vendor
	// configuration.
	SafetyLimit int
}

const (
	defaultEmptyThreshold = 2
	defaultSafetyLimit    = 100
)

// Runner executes discovery for one vendor at a time.
type Runner struct {
	listings Lister
	sitemaps *SitemapClient
	opts     Options
	log      *zap.Logger
}

// NewRunner wires the listing fetcher and manifest client together.
func NewRunner(listings Lister, sitemaps *SitemapClient, opts Options, log *zap.Logger) *Runner {
	if opts.EmptyThreshold <= 0 {
		opts.EmptyThreshold = defaultEmptyThreshold
	}
	if opts.SafetyLimit <= 0 {
		opts.SafetyLimit = defaultSafetyLimit
	}
	return &Runner{listings: listings, sitemaps: sitemaps, opts: opts, log: log}
}

// Run discovers candidates for p using its configured method.
func (r *Runner) Run(ctx context.Context, p *vendors.Profile) (*Result, error) {
	switch p.DiscoveryMethod {
	case vendors.MethodSitemap:
		return r.manifest(ctx, p)
	case vendors.MethodPagination:
		pager, err := NewPager(p)
		if err != nil {
			return nil, err
		}
		return r.paginate(ctx, p, pager)
	default:
		return nil, &vendors.ConfigError{Vendor: p.Name, Field: "discovery_method", Msg: "unknown method"}
	}
}

// paginate walks listing pages until the completion detector fires.
func (r *Runner) paginate(ctx context.Context, p *vendors.Profile, pager Pager) (*Result, error) {
	seen := make(map[string]int)
	consecutiveEmpty := 0
	pagesFetched := 0
	reason := ""

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if max := pager.MaxPages(); max > 0 && page >= max {
			reason = ReasonMaxPages
			break
		}
		if page >= r.opts.SafetyLimit {
			reason = ReasonSafetyLimit
			break
		}

		uri := pager.PageURL(page)
		markup, err := r.listings.Listing(ctx, uri)
		pagesFetched++

		var extracted []string
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A failed listing counts as an empty page; repeated
			// failure eventually reads as end-of-data.
			r.log.Warn("listing fetch failed",
				zap.String("vendor", p.Name),
				zap.Int("page", page),
				zap.Error(err))
		} else {
			extracted = ExtractLinks(markup, p.Website, p.LinkPatterns, p.ExcludePatterns)
		}

		if len(extracted) == 0 {
			consecutiveEmpty++
			r.log.Debug("empty listing page",
				zap.String("vendor", p.Name),
				zap.Int("page", page),
				zap.Int("consecutive", consecutiveEmpty))
			if consecutiveEmpty >= r.opts.EmptyThreshold {
				reason = ReasonEmpty
				break
			}
			continue
		}
		consecutiveEmpty = 0

		newItems := 0
		for _, u := range extracted {
			if _, ok := seen[u]; !ok {
				seen[u] = page
				newItems++
			}
		}
		r.log.Debug("listing page extracted",
			zap.String("vendor", p.Name),
			zap.Int("page", page),
			zap.Int("links", len(extracted)),
			zap.Int("new", newItems))

		// A non-empty page of nothing but repeats means the source
		// wrapped around. The first page is exempt so a rerun over
		// known data does not trip it.
		if newItems == 0 && page > 0 {
			reason = ReasonLoop
			break
		}
	}

	res := collect(p.Name, seen, reason, pagesFetched)
	r.log.Info("discovery finished",
		zap.String("vendor", p.Name),
		zap.String("reason", reason),
		zap.Int("pages", pagesFetched),
		zap.Int("candidates", len(res.Candidates)))
	return res, nil
}

// manifest expands a sitemap in one shot. Unlike a flaky listing page,
// an unreachable manifest leaves us with no idea what the vendor
// publishes, so the whole discovery fails rather than reporting an
// empty vendor as complete.
func (r *Runner) manifest(ctx context.Context, p *vendors.Profile) (*Result, error) {
	uri := p.SitemapURL()
	entries, err := r.sitemaps.Expand(ctx, uri)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Error("manifest expansion failed",
			zap.String("vendor", p.Name),
			zap.String("uri", uri),
			zap.Error(err))
		return nil, err
	}

	seen := make(map[string]int)
	for _, u := range FilterManifest(entries, p.Website, p.LinkPatterns, p.ExcludePatterns) {
		seen[u] = -1
	}

	res := collect(p.Name, seen, ReasonManifest, 1)
	r.log.Info("manifest discovery finished",
		zap.String("vendor", p.Name),
		zap.String("uri", uri),
		zap.Int("candidates", len(res.Candidates)))
	return res, nil
}

func collect(vendor string, seen map[string]int, reason string, pages int) *Result {
	cands := make([]Candidate, 0, len(seen))
	for uri, page := range seen {
		cands = append(cands, Candidate{URI: uri, Vendor: vendor, DiscoveredAtPage: page})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].URI < cands[j].URI })
	return &Result{Candidates: cands, Reason: reason, Pages: pages}
}
