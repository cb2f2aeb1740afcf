package fetch

import (
	"context"
	"math/rand"
	"time"
)

const jitterFactor = 0.2

// RetryPolicy bounds transient-failure retries with exponential
// backoff. The attempt budget comes from the vendor profile, the
// backoff shape from runtime configuration.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Backoff returns the delay before retry number attempt (0-based),
// doubling each time with ±20% jitter, capped at Cap.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	jitter := 1 + jitterFactor*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

// Do runs op until it succeeds, fails non-transiently, or spends the
// attempt budget. Only transient failures are retried.
func Do(ctx context.Context, p RetryPolicy, op func(context.Context) (*Result, error)) (*Result, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.Backoff(attempt - 1)):
			}
		}
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
