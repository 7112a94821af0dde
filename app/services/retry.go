package services

import (
	"context"
	"errors"
	"time"
)

// RetryOptions configures Retry
type RetryOptions struct {
	MaxAttempts        int
	Delay              time.Duration
	ExponentialBackoff bool
	// Sleep waits for d or until ctx is done. Nil means a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryOptions matches the provider call policy: 3 attempts, 1s, exponential
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:        3,
		Delay:              time.Second,
		ExponentialBackoff: true,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry calls fn until it succeeds, returns a permanent error, or MaxAttempts is reached.
// The wait between attempt k and k+1 is Delay, or Delay*2^(k-1) with ExponentialBackoff.
// After the last attempt the last error is returned unchanged.
func Retry[T any](ctx context.Context, fn func(context.Context) (T, error), opts RetryOptions) (T, error) {
	var zero T

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, backoffDelay(opts, attempt)); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func backoffDelay(opts RetryOptions, attempt int) time.Duration {
	if !opts.ExponentialBackoff {
		return opts.Delay
	}
	return opts.Delay * time.Duration(1<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
