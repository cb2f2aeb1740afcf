package fetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	colly "github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	defaultParallelism = 2
	defaultMaxBodySize = 10 * 1024 * 1024
)

// captureKey is the request context key for the per-request capture.
const captureKey = "capture"

// PrimaryOptions configures the cheap HTTP tier for one vendor.
type PrimaryOptions struct {
	UserAgent    string
	Timeout      time.Duration
	Delay        time.Duration
	RandomDelay  time.Duration
	Parallelism  int
	MaxBodySize  int
	BlockMarkers []string
	Headers      map[string]string
}

// Primary is the low-cost fetch tier. One instance per vendor so the
// politeness limit reflects that vendor's profile.
type Primary struct {
	collector *colly.Collector
	markers   []string
	log       *zap.Logger
}

// capture collects the response of a single request through the
// collector callbacks.
type capture struct {
	status  int
	body    []byte
	headers http.Header
	err     error
}

// NewPrimary builds the HTTP tier with per-domain politeness limits.
func NewPrimary(opts PrimaryOptions, log *zap.Logger) (*Primary, error) {
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}

	collectorOpts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(opts.MaxBodySize),
	}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}

	c := colly.NewCollector(collectorOpts...)
	// The collector default is to ignore robots.txt; vendors that
	// disallow crawling are skipped, not worked around.
	c.IgnoreRobotsTxt = false
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       opts.Delay,
		RandomDelay: opts.RandomDelay,
		Parallelism: opts.Parallelism,
	}); err != nil {
		return nil, err
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range opts.Headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		cap, ok := r.Request.Ctx.GetAny(captureKey).(*capture)
		if !ok {
			return
		}
		cap.status = r.StatusCode
		cap.body = r.Body
		if r.Headers != nil {
			cap.headers = r.Headers.Clone()
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		cap, ok := r.Request.Ctx.GetAny(captureKey).(*capture)
		if !ok {
			return
		}
		cap.err = err
		cap.status = r.StatusCode
	})

	return &Primary{collector: c, markers: opts.BlockMarkers, log: log}, nil
}

// Fetch retrieves uri through the HTTP tier and classifies the outcome.
func (p *Primary) Fetch(ctx context.Context, uri string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cap := &capture{}
	cctx := colly.NewContext()
	cctx.Put(captureKey, cap)

	if err := p.collector.Request(http.MethodGet, uri, nil, cctx, nil); err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return nil, &PermanentError{URI: uri, Reason: "disallowed by robots.txt"}
		}
		// Transport failures surface both here and through OnError;
		// pre-request rejections (bad URL, revisit rules) only here.
		if cap.err != nil || looksTransient(err) {
			return nil, classifyNetErr(uri, err)
		}
		return nil, &PermanentError{URI: uri, Reason: err.Error()}
	}
	if cap.err != nil {
		return nil, classifyNetErr(uri, cap.err)
	}
	if isCloudflareChallenge(cap.headers, cap.body) {
		return nil, &BlockedError{URI: uri, StatusCode: cap.status, Marker: "cloudflare challenge"}
	}

	// Block markers outrank the status code: challenge pages ship as
	// 403s and 503s, and retrying those just burns the attempt budget.
	html := string(cap.body)
	if marker, blocked := DetectBlock(html, p.markers); blocked {
		return nil, &BlockedError{URI: uri, StatusCode: cap.status, Marker: marker}
	}
	if err := classifyStatus(uri, cap.status); err != nil {
		return nil, err
	}

	res, err := FromHTML(uri, html, EnginePrimary)
	if err != nil {
		return nil, &PermanentError{URI: uri, Reason: "unparsable document: " + err.Error()}
	}
	p.log.Debug("fetched via primary tier",
		zap.String("uri", uri),
		zap.Int("status", cap.status),
		zap.Int("words", res.WordCount))
	return res, nil
}

// isCloudflareChallenge detects Cloudflare challenge interstitials by
// their response headers and well-known challenge copy.
func isCloudflareChallenge(h http.Header, body []byte) bool {
	if h == nil {
		return false
	}
	hasCfRay := h.Get("Cf-Ray") != ""
	if hasCfRay && strings.EqualFold(h.Get("Cf-Mitigated"), "challenge") {
		return true
	}
	hasCfServer := strings.Contains(strings.ToLower(h.Get("Server")), "cloudflare")
	if !hasCfRay && !hasCfServer {
		return false
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "just a moment") ||
		strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "ddos protection by cloudflare")
}
