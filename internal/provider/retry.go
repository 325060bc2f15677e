package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy configures exponential backoff for outbound calls.
type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultRetryPolicy is 3 attempts starting at 500ms, doubling up to 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, Factor: 2}
}

// retry runs op until it succeeds, returns a permanent error or the
// attempts run out. op marks non-retryable failures with backoff.Permanent.
func retry[T any](ctx context.Context, p RetryPolicy, log *zap.Logger, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Factor
	b.RandomizationFactor = 0.5

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("request failed, retrying", zap.Error(err), zap.Duration("backoff", next))
		}),
	)
}
