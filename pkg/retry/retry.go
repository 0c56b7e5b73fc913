// Package retry implements the backoff/retry primitives used by the
// Executor's retry of failed Handler submits (SubmitError, spec.md §7),
// adapted from opst-knitfab/pkg/utils/retry/retry.go.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry, returned by a Blocking callback, requests another attempt.
var ErrRetry = errors.New("retry")

// Backoff blocks until the next attempt should be made, or returns a
// non-nil error (typically ctx.Err()) to abandon retrying.
type Backoff func(context.Context) error

// StaticBackoff waits a fixed interval between attempts.
func StaticBackoff(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff waits initialInterval * r^N before the N-th retry.
// The Executor wraps it in Bounded for submit retries; observe errors are
// not retried through this package but on the Executor's next poll tick.
func ExponentialBackoff(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(float64(interval) * r)
			return nil
		}
	}
}

// Bounded wraps a Backoff so it gives up after maxAttempts calls,
// used for the Handlers' bounded submit retries (spec.md §7: SubmitError
// "retried bounded, then the task is marked FAILED").
func Bounded(b Backoff, maxAttempts int) Backoff {
	attempts := 0
	return func(ctx context.Context) error {
		if attempts >= maxAttempts {
			return errors.New("retry: max attempts exhausted")
		}
		attempts++
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or a non-ErrRetry error, waiting
// on b before every attempt, the first one included.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		if err := b(ctx); err != nil {
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			continue
		}
		return last, err
	}
}
