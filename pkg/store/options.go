package store

import (
	"net/url"
	"time"

	"github.com/nimburion/docstore/pkg/health"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/resilience"
)

// DefaultOperationTimeout bounds CRUD operations whose context has no deadline.
const DefaultOperationTimeout = 10 * time.Second

// Settings holds the connection parameters shared by every backend.
type Settings struct {
	// Target is the address of the first connection attempt.
	Target string
	Retry  resilience.RetryPolicy
	// OperationTimeout bounds Get, Set, Remove and RemoveAll. Zero selects
	// DefaultOperationTimeout, a negative value disables the bound.
	OperationTimeout time.Duration
}

type options struct {
	log          logger.Logger
	signal       *health.Signal
	observer     Observer
	failover     func(resilience.Attempt) (string, bool)
	onConnected  func(resilience.Attempt)
	retryOptions []resilience.RetryOption
}

// Option customises an Adapter.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithSignal makes the adapter publish readiness on signal instead of a
// private one, so callers can subscribe before the client exists.
func WithSignal(signal *health.Signal) Option {
	return func(o *options) {
		if signal != nil {
			o.signal = signal
		}
	}
}

// WithObserver reports connection attempts and operations to observer.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithFailover installs a hook that runs after each failed connection
// attempt. Returning redirect=true makes next the target of the following attempt.
func WithFailover(hook func(attempt resilience.Attempt) (next string, redirect bool)) Option {
	return func(o *options) {
		o.failover = hook
	}
}

// WithConnectedHook installs a hook that runs after a successful connection.
func WithConnectedHook(hook func(attempt resilience.Attempt)) Option {
	return func(o *options) {
		o.onConnected = hook
	}
}

// WithRetryOptions forwards options to the connection retry engine.
func WithRetryOptions(opts ...resilience.RetryOption) Option {
	return func(o *options) {
		o.retryOptions = append(o.retryOptions, opts...)
	}
}

// RedactTarget hides credentials embedded in a connection URL.
func RedactTarget(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.User == nil {
		return target
	}
	return u.Redacted()
}
