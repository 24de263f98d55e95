package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout
var ErrTimeout = errors.New("operation timed out")

// WithTimeout executes fn with a timeout.
// If fn does not complete within the timeout, WithTimeout returns ErrTimeout.
// A non-positive timeout runs fn bounded only by ctx.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := WithTimeoutValue(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}

// WithTimeoutValue is WithTimeout for functions that produce a value.
//
// When fn finishes after the caller has already been released, a successful
// result is passed to discard so that resources such as freshly dialled
// connections are not leaked.
func WithTimeoutValue[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), discard func(T)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := fn(timeoutCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		cancel()
		return out.value, out.err
	case <-timeoutCtx.Done():
		go func() {
			defer cancel()
			out := <-done
			if out.err == nil && discard != nil {
				discard(out.value)
			}
		}()

		var zero T
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
