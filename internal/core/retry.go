package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transient persistence failure is retried.
type RetryPolicy struct {
	MaxRetries      int           // Retries after the first attempt (0 disables retry)
	InitialInterval time.Duration // First backoff delay
	MaxInterval     time.Duration // Cap on a single delay
}

// DefaultRetryPolicy is used when Options.Retry is zero.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// retryTransient runs op until it succeeds, fails with a non-transient error,
// or the policy is exhausted. The last error is returned unchanged.
func retryTransient(ctx context.Context, p RetryPolicy, logger *slog.Logger, op func() error) error {
	attempt := 0
	var last error

	err := backoff.RetryNotify(func() error {
		attempt++
		err := op()
		last = err
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		logger.Warn("transient persistence error, retrying",
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	})

	// backoff reports ctx.Err() when the context ends between attempts;
	// the store error is more useful to the operator.
	if err != nil && last != nil && ctx.Err() != nil {
		return last
	}
	return err
}
