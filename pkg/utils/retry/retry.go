package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetry is returned by a function to be retried.
var ErrRetry = errors.New("retry")

// ErrGaveUp is returned by a Backoff which does not wait any more.
var ErrGaveUp = errors.New("gave up retrying")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// # Args
//
// - initialInterval: initial interval.
//
// - r: multiplier of interval.
//
// # Returns
//
// Backoff function.
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			i := float64(interval) * r
			interval = time.Duration(int64(i))
			return nil
		}
	}
}

// Limit wraps b to wait at most n times.
//
// After that, the Backoff returns ErrGaveUp.
func Limit(n int, b Backoff) Backoff {
	count := 0
	return func(ctx context.Context) error {
		if n <= count {
			return ErrGaveUp
		}
		count += 1
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// # Args
//
// - ctx: context
//
// - b: backoff function. It is called after each retry.
//
// - f: function to be called. If f returns ErrRetry, Blocking calls f again after backoff.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f.
// When b stops retrying, the error of b joined with the last error of f.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	for {
		last, err := f()
		if err == nil {
			return last, nil
		}
		if !errors.Is(err, ErrRetry) {
			return last, err
		}
		if berr := b(ctx); berr != nil {
			return last, fmt.Errorf("%w: %w", berr, err)
		}
	}
}
