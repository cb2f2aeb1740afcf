package fetch

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Policy carries the per-vendor engine thresholds.
type Policy struct {
	// ForceSecondary skips the primary tier for vendors known to wall
	// off plain HTTP clients.
	ForceSecondary bool
	// MinWordCount is the quality gate; zero disables it.
	MinWordCount int
}

// Engine coordinates the two fetch tiers. The primary tier is tried
// first; blocking, low quality, or an exhausted retry budget escalate
// to the secondary tier. Permanent failures never escalate.
type Engine struct {
	primary   Fetcher
	secondary Fetcher
	policy    Policy
	retry     RetryPolicy
	log       *zap.Logger
}

// NewEngine builds an engine for one vendor.
func NewEngine(primary, secondary Fetcher, policy Policy, retry RetryPolicy, log *zap.Logger) *Engine {
	return &Engine{
		primary:   primary,
		secondary: secondary,
		policy:    policy,
		retry:     retry,
		log:       log,
	}
}

// Fetch retrieves uri, escalating between tiers as needed. A
// *QualityError return carries the best available result when both
// tiers fall short of the word-count gate.
func (e *Engine) Fetch(ctx context.Context, uri string) (*Result, error) {
	if e.policy.ForceSecondary || e.primary == nil {
		return e.escalate(ctx, uri, nil, nil)
	}

	res, err := Do(ctx, e.retry, func(ctx context.Context) (*Result, error) {
		return e.primary.Fetch(ctx, uri)
	})
	switch {
	case err == nil:
		if res.WordCount >= e.policy.MinWordCount {
			return res, nil
		}
		e.log.Info("primary result below quality threshold, escalating",
			zap.String("uri", uri),
			zap.Int("words", res.WordCount),
			zap.Int("min_words", e.policy.MinWordCount))
		return e.escalate(ctx, uri, res, nil)
	case IsPermanent(err):
		return nil, err
	case IsBlocked(err):
		e.log.Info("primary blocked, escalating",
			zap.String("uri", uri),
			zap.Error(err))
		return e.escalate(ctx, uri, nil, err)
	case IsTransient(err):
		e.log.Warn("primary retries exhausted, escalating",
			zap.String("uri", uri),
			zap.Error(err))
		return e.escalate(ctx, uri, nil, err)
	default:
		// Context cancellation and other non-fetch errors.
		return nil, err
	}
}

// escalate runs the secondary tier. primaryBest, when non-nil, is a
// below-threshold primary result competing against the secondary's;
// priorErr is the primary failure to surface when no secondary exists.
func (e *Engine) escalate(ctx context.Context, uri string, primaryBest *Result, priorErr error) (*Result, error) {
	if e.secondary == nil {
		if primaryBest != nil {
			return nil, e.qualityErr(uri, primaryBest)
		}
		if priorErr != nil {
			return nil, priorErr
		}
		return nil, errors.New("no fetch tier configured")
	}

	res, err := Do(ctx, e.retry, func(ctx context.Context) (*Result, error) {
		return e.secondary.Fetch(ctx, uri)
	})
	if err != nil {
		if primaryBest != nil && !IsPermanent(err) {
			return nil, e.qualityErr(uri, primaryBest)
		}
		return nil, err
	}
	if res.WordCount >= e.policy.MinWordCount {
		return res, nil
	}

	best := res
	if primaryBest != nil && primaryBest.WordCount > res.WordCount {
		best = primaryBest
	}
	return nil, e.qualityErr(uri, best)
}

func (e *Engine) qualityErr(uri string, best *Result) *QualityError {
	return &QualityError{
		URI:      uri,
		Words:    best.WordCount,
		MinWords: e.policy.MinWordCount,
		Best:     best,
	}
}
