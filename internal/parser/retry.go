package parser

import (
	"context"
	"log/slog"
	"time"

	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transient parser failure is retried.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func newRetryBackoff(policy RetryPolicy) backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	if policy.Backoff > 0 {
		bo.InitialInterval = policy.Backoff
	}
	bo.MaxElapsedTime = 0
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(bo, uint64(maxRetries))
}

// withRetry runs op until it succeeds, fails permanently, the retry budget is
// spent or ctx ends. Only transient and conflict errors are retried.
func withRetry(ctx context.Context, name string, policy RetryPolicy, op func(context.Context) error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !kakuninErrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("Parser attempt failed", "parser", name, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(newRetryBackoff(policy), ctx))
}
