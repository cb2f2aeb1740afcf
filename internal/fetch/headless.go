package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultHeadlessTimeout = 30 * time.Second

// HeadlessOptions configures the shared browser pool.
type HeadlessOptions struct {
	UserAgent string
	Timeout   time.Duration
}

// VendorOptions is the per-vendor fetch profile applied on top of the
// shared pool: politeness delay between renders, extra block markers,
// and request headers.
type VendorOptions struct {
	Delay        time.Duration
	BlockMarkers []string
	Headers      map[string]string
}

// Headless is the high-cost fetch tier: a pooled headless browser that
// renders JavaScript-heavy or bot-walled pages. One pool is shared
// across vendors; ForVendor binds a vendor's fetch profile to it.
type Headless struct {
	opts      HeadlessOptions
	log       *zap.Logger
	allocPool sync.Pool

	mu   sync.Mutex
	last time.Time
}

// NewHeadless builds the browser tier. Browser processes start lazily
// on first use and are reused through the allocator pool.
func NewHeadless(opts HeadlessOptions, log *zap.Logger) *Headless {
	h := &Headless{opts: opts, log: log}
	h.allocPool.New = func() interface{} {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, _ := chromedp.NewExecAllocator(context.Background(), execOpts...)
		return allocCtx
	}
	return h
}

// ForVendor returns a Fetcher that renders through the shared pool
// with the vendor's delay, block markers, and headers applied.
func (h *Headless) ForVendor(opts VendorOptions) Fetcher {
	return &vendorHeadless{pool: h, opts: opts}
}

type vendorHeadless struct {
	pool *Headless
	opts VendorOptions
}

func (v *vendorHeadless) Fetch(ctx context.Context, uri string) (*Result, error) {
	return v.pool.fetch(ctx, uri, v.opts)
}

// throttle enforces the politeness delay between renders. The
// timestamp is shared across vendors so renders stay spaced pool-wide.
func (h *Headless) throttle(delay time.Duration) {
	if delay <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if wait := delay - time.Since(h.last); wait > 0 {
		time.Sleep(wait)
	}
	h.last = time.Now()
}

// fetch renders uri in a headless browser and extracts its content.
func (h *Headless) fetch(ctx context.Context, uri string, opts VendorOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.throttle(opts.Delay)

	allocCtx := h.allocPool.Get().(context.Context)
	defer h.allocPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := h.opts.Timeout
	if timeout <= 0 {
		timeout = defaultHeadlessTimeout
	}
	taskCtx, tcancel := context.WithTimeout(taskCtx, timeout)
	defer tcancel()

	actions := make([]chromedp.Action, 0, 5)
	if len(opts.Headers) > 0 {
		hdrs := make(network.Headers, len(opts.Headers))
		for k, v := range opts.Headers {
			hdrs[k] = v
		}
		actions = append(actions, network.Enable(), network.SetExtraHTTPHeaders(hdrs))
	}

	var html string
	actions = append(actions,
		chromedp.Navigate(uri),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, classifyNetErr(uri, err)
	}

	if marker, blocked := DetectBlock(html, opts.BlockMarkers); blocked {
		return nil, &BlockedError{URI: uri, Marker: marker}
	}

	res, err := FromHTML(uri, html, EngineSecondary)
	if err != nil {
		return nil, &PermanentError{URI: uri, Reason: "unparsable document: " + err.Error()}
	}
	h.log.Debug("fetched via secondary tier",
		zap.String("uri", uri),
		zap.Int("words", res.WordCount))
	return res, nil
}
