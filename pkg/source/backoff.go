// Package source fetches pages of records from remote record-keeping APIs.
// It layers a rate-limited fetcher with bounded exponential backoff, a
// pagination walker that hides the source's paging strategy, and an
// adaptive date-window partitioner for sources that silently truncate
// responses at a page ceiling.
package source

import (
	"context"
	"time"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/errors"
)

// BackoffPolicy implements bounded exponential backoff. Attempt k (zero
// based) waits BaseDelay * Multiplier^k before retrying, capped at
// MaxDelay. Only retryable errors (throttling) are retried.
type BackoffPolicy struct {
	// MaxAttempts is the total attempt budget, including the first try
	MaxAttempts int
	// BaseDelay is the wait before the first retry
	BaseDelay time.Duration
	// MaxDelay caps any single wait
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive retries
	Multiplier float64

	// sleep is swappable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBackoffPolicy builds a policy from retry configuration.
func NewBackoffPolicy(cfg config.RetryConfig) *BackoffPolicy {
	return &BackoffPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay.Std(),
		MaxDelay:    cfg.MaxDelay.Std(),
		Multiplier:  2.0,
		sleep:       sleepContext,
	}
}

// Delay returns the wait before retrying after the given zero-based
// failed attempt.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Execute runs op, retrying retryable failures until the attempt budget
// is exhausted. The terminal error is the last attempt's error.
func (p *BackoffPolicy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTransport, "fetch canceled")
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTransport, "fetch canceled during backoff")
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
