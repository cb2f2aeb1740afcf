package main

import (
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/discovery"
	"github.com/refstream/refstream/internal/fetch"
	"github.com/refstream/refstream/internal/pipeline"
	"github.com/refstream/refstream/internal/vendors"
)

// engineFactory builds the per-vendor discovery runners and fetch
// engines. Each vendor gets its own collector so politeness limits
// follow its profile; the browser pool and the sitemap client are
// shared because both are expensive, with the vendor's fetch profile
// bound onto the pool per engine.
type engineFactory struct {
	cfg      *config.Config
	log      *zap.Logger
	headless *fetch.Headless
	sitemaps *discovery.SitemapClient
}

func newEngineFactory(cfg *config.Config, log *zap.Logger) *engineFactory {
	return &engineFactory{
		cfg: cfg,
		log: log,
		headless: fetch.NewHeadless(fetch.HeadlessOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.FetchTimeout,
		}, log),
		sitemaps: discovery.NewSitemapClient(discovery.SitemapOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.FetchTimeout,
			Retry:     fetch.RetryPolicy{Base: cfg.RetryBase, Cap: cfg.RetryMax},
		}, log),
	}
}

func (f *engineFactory) retryPolicy(p *vendors.Profile) fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxAttempts: p.MaxAttempts(),
		Base:        f.cfg.RetryBase,
		Cap:         f.cfg.RetryMax,
	}
}

func (f *engineFactory) primary(p *vendors.Profile) (*fetch.Primary, error) {
	return fetch.NewPrimary(fetch.PrimaryOptions{
		UserAgent:    f.cfg.UserAgent,
		Timeout:      f.cfg.FetchTimeout,
		Delay:        p.Fetch.Delay,
		RandomDelay:  p.Fetch.RandomDelay,
		BlockMarkers: p.Fetch.BlockMarkers,
		Headers:      p.Fetch.Headers,
	}, f.log)
}

// Discoverer builds the listing walker for one vendor. Listings stay
// on the primary tier.
func (f *engineFactory) Discoverer(p *vendors.Profile) (pipeline.Discoverer, error) {
	prim, err := f.primary(p)
	if err != nil {
		return nil, err
	}
	lister := fetch.NewListingFetcher(prim, f.retryPolicy(p))
	return discovery.NewRunner(lister, f.sitemaps, discovery.Options{
		EmptyThreshold: f.cfg.EmptyPageThreshold,
		SafetyLimit:    f.cfg.SafetyPageLimit,
	}, f.log), nil
}

// Fetcher builds the dual-tier engine for one vendor.
func (f *engineFactory) Fetcher(p *vendors.Profile) (fetch.Fetcher, error) {
	prim, err := f.primary(p)
	if err != nil {
		return nil, err
	}
	secondary := f.headless.ForVendor(fetch.VendorOptions{
		Delay:        p.Fetch.Delay,
		BlockMarkers: p.Fetch.BlockMarkers,
		Headers:      p.Fetch.Headers,
	})
	return fetch.NewEngine(prim, secondary, fetch.Policy{
		ForceSecondary: p.Fetch.ForceSecondary,
		MinWordCount:   p.MinWords(f.cfg.MinWordCount),
	}, f.retryPolicy(p), f.log), nil
}
