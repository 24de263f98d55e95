package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultProbeTimeout bounds a connection attempt when the policy has no wait.
const DefaultProbeTimeout = 5 * time.Second

var (
	// ErrDeadlineExceeded is the reason of a RetryError when the policy's
	// AbortAfter elapsed without a successful attempt.
	ErrDeadlineExceeded = errors.New("retry deadline exceeded")

	// ErrCancelled is the reason of a RetryError when the caller's context
	// was cancelled while attempting or waiting.
	ErrCancelled = errors.New("connection attempt cancelled")
)

// RetryPolicy controls how long ConnectWithRetry keeps trying.
// The zero value allows exactly one attempt.
type RetryPolicy struct {
	WaitBetween time.Duration `mapstructure:"wait_between" json:"wait_between" yaml:"wait_between"`
	AbortAfter  time.Duration `mapstructure:"abort_after" json:"abort_after" yaml:"abort_after"`
}

// ProbeTimeout bounds a single attempt.
func (p RetryPolicy) ProbeTimeout() time.Duration {
	if p.WaitBetween > 0 {
		return p.WaitBetween
	}
	return DefaultProbeTimeout
}

// MaxAttempts is the number of attempts the policy allows when every attempt
// fails instantly.
func (p RetryPolicy) MaxAttempts() int {
	if p.AbortAfter <= 0 {
		return 1
	}
	if p.WaitBetween <= 0 {
		return -1
	}
	n := p.AbortAfter / p.WaitBetween
	if p.AbortAfter%p.WaitBetween != 0 {
		n++
	}
	return int(n) + 1
}

// Validate rejects negative durations.
func (p RetryPolicy) Validate() error {
	if p.WaitBetween < 0 {
		return fmt.Errorf("retry wait_between must not be negative, got %s", p.WaitBetween)
	}
	if p.AbortAfter < 0 {
		return fmt.Errorf("retry abort_after must not be negative, got %s", p.AbortAfter)
	}
	return nil
}

// Attempt describes one connection attempt.
type Attempt struct {
	Number int
	Target string
	Err    error
	At     time.Time
}

// Emitter publishes readiness. *health.Signal implements it.
type Emitter interface {
	Emit(ready bool)
}

// RetryRequest describes what ConnectWithRetry should establish.
type RetryRequest[H any] struct {
	// Target is the address of the first attempt.
	Target string
	Policy RetryPolicy

	// Dial connects to target and probes the connection. It must honour ctx.
	Dial func(ctx context.Context, target string) (H, error)
	// Release closes a handle produced by a Dial that finished after its
	// attempt had already timed out.
	Release func(H)
	// Accept stores the handle. It runs before readiness is emitted.
	Accept func(H, Attempt)

	Emitter Emitter

	// OnConnected runs after the successful attempt was emitted.
	OnConnected func(Attempt)
	// OnFailure runs after every failed attempt. Returning redirect=true
	// makes next the target of the following attempt.
	OnFailure func(Attempt) (next string, redirect bool)
}

// RetryError reports a connection cycle that ended without a handle.
type RetryError struct {
	Attempts int
	Target   string
	Last     error
	Reason   error
}

func (e *RetryError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%v after %d attempt(s)", e.Reason, e.Attempts)
	}
	return fmt.Sprintf("%v after %d attempt(s): %v", e.Reason, e.Attempts, e.Last)
}

// Unwrap exposes both the reason and the last attempt's cause to errors.Is.
func (e *RetryError) Unwrap() []error {
	if e.Last == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Last}
}

type retryOptions struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RetryOption customises ConnectWithRetry.
type RetryOption func(*retryOptions)

// WithClock replaces the wall clock and the inter-attempt sleep.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(o *retryOptions) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectWithRetry dials until an attempt succeeds or the policy gives up.
//
// The first attempt runs immediately; later attempts wait WaitBetween first.
// Every failed attempt emits false and every success emits true. The cycle
// fails once an attempt finishes at or after start+AbortAfter, so a zero
// AbortAfter allows exactly one attempt. A failure is always a *RetryError.
func ConnectWithRetry[H any](ctx context.Context, req RetryRequest[H], opts ...RetryOption) (H, error) {
	var zero H
	if req.Dial == nil {
		return zero, errors.New("resilience: retry request has no Dial function")
	}

	o := retryOptions{now: time.Now, sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	emit := func(ready bool) {
		if req.Emitter != nil {
			req.Emitter.Emit(ready)
		}
	}

	deadline := o.now().Add(req.Policy.AbortAfter)
	target := req.Target
	var last error

	for n := 1; ; n++ {
		if n > 1 {
			if err := o.sleep(ctx, req.Policy.WaitBetween); err != nil {
				return zero, &RetryError{Attempts: n - 1, Target: target, Last: last, Reason: ErrCancelled}
			}
		}
		if ctx.Err() != nil {
			return zero, &RetryError{Attempts: n - 1, Target: target, Last: last, Reason: ErrCancelled}
		}

		attempt := Attempt{Number: n, Target: target, At: o.now()}
		dialTarget := target
		handle, err := WithTimeoutValue(ctx, req.Policy.ProbeTimeout(), func(ctx context.Context) (H, error) {
			return req.Dial(ctx, dialTarget)
		}, req.Release)

		if err == nil {
			if req.Accept != nil {
				req.Accept(handle, attempt)
			}
			emit(true)
			if req.OnConnected != nil {
				req.OnConnected(attempt)
			}
			return handle, nil
		}

		attempt.Err = err
		last = err
		emit(false)

		if ctx.Err() != nil {
			return zero, &RetryError{Attempts: n, Target: target, Last: err, Reason: ErrCancelled}
		}

		if req.OnFailure != nil {
			if next, redirect := req.OnFailure(attempt); redirect {
				target = next
			}
		}

		if !o.now().Before(deadline) {
			return zero, &RetryError{Attempts: n, Target: attempt.Target, Last: err, Reason: ErrDeadlineExceeded}
		}
	}
}
