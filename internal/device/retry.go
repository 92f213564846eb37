package device

import (
	"context"
	"time"

	"codeberg.org/mutker/swervectl/internal/errors"
)

const (
	DefaultAttempts = 5
	DefaultTimeout  = 250 * time.Millisecond
)

// Retry describes how configuration writes are reissued when the device does
// not acknowledge them.
type Retry struct {
	Attempts int
	Timeout  time.Duration
}

func DefaultRetry() Retry {
	return Retry{Attempts: DefaultAttempts, Timeout: DefaultTimeout}
}

// Do runs fn until it succeeds or the attempt budget is spent.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return TryUntilOK(ctx, r.Attempts, r.Timeout, fn)
}

// TryUntilOK calls fn at most attempts times, each with its own timeout, and
// stops at the first nil error. When every attempt fails it returns an
// ErrRetriesExhausted error wrapping the last failure. A cancelled ctx stops
// the loop early.
func TryUntilOK(ctx context.Context, attempts int, timeout time.Duration, fn func(ctx context.Context) error) error {
	errFactory := errors.New()
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return errFactory.Wrap(errors.ErrTimeout, err)
		}

		lastErr = attempt(ctx, timeout, fn)
		if lastErr == nil {
			return nil
		}
	}

	return errFactory.Wrap(ErrRetriesExhausted, lastErr).WithData(struct {
		Attempts int
		Last     string
	}{
		Attempts: attempts,
		Last:     lastErr.Error(),
	})
}

func attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(attemptCtx)
}
