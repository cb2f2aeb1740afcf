package fetch

import "context"

// ListingFetcher retrieves listing pages for discovery. Listings stay
// on the primary tier: a vendor whose listings need a browser to
// render is better served by its sitemap.
type ListingFetcher struct {
	tier  Fetcher
	retry RetryPolicy
}

// NewListingFetcher wraps tier with the transient-retry budget used
// for listing pages.
func NewListingFetcher(tier Fetcher, retry RetryPolicy) *ListingFetcher {
	return &ListingFetcher{tier: tier, retry: retry}
}

// Listing fetches one listing page and returns its raw markup.
func (l *ListingFetcher) Listing(ctx context.Context, uri string) (string, error) {
	res, err := Do(ctx, l.retry, func(ctx context.Context) (*Result, error) {
		return l.tier.Fetch(ctx, uri)
	})
	if err != nil {
		return "", err
	}
	return res.HTML, nil
}
