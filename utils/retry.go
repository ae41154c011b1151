package utils

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// newBackOff doubles from base up to five seconds, without jitter.
func newBackOff(base time.Duration) *backoff.ExponentialBackOff {
	if base <= 0 {
		base = defaultRetryDelay
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry calls fn until it succeeds, attempts are exhausted or ctx is done.
// The last error from fn is returned, unwrapped if it was Permanent.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(base), uint64(attempts-1)), ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn(ctx)
		return lastErr
	}, policy)
	if err != nil && lastErr != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// the operation's own error, not ctx.Err()
		var perm *backoff.PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		return lastErr
	}
	return err
}
