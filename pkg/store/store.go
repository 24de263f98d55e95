// Package store defines the document store client contract and the generic
// adapter that runs it over a backend driver.
package store

import (
	"context"
	"time"

	"github.com/nimburion/docstore/pkg/health"
)

// Document is a JSON object stored under one key.
type Document map[string]any

// Documents maps keys to documents. A nil Document marks a missing key.
type Documents map[string]Document

// Client is the uniform document store contract implemented by every backend.
//
// Every operation except Connect fails with ErrNotInitialized while the client
// holds no connection, without contacting the backend.
type Client interface {
	// Connect establishes the connection, retrying according to the
	// client's retry policy, and emits readiness on every attempt.
	Connect(ctx context.Context) error
	// Disconnect releases the connection and emits not-ready.
	Disconnect(ctx context.Context) error
	// IsReady probes the backend and emits the outcome.
	IsReady(ctx context.Context) error

	// Get returns one entry per distinct key; missing keys map to nil.
	Get(ctx context.Context, keys []string) (Documents, error)
	// Set writes every document of payload in one batch.
	Set(ctx context.Context, payload map[string]any) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// RemoveAll wipes the configured namespace.
	RemoveAll(ctx context.Context) error

	// Health returns the client's readiness signal.
	Health() *health.Signal
	// Backend names the engine, e.g. "redis".
	Backend() string
}

// Driver adapts one engine to the Adapter. H is the engine's native handle.
//
// Drivers never see a missing handle: the Adapter guarantees every method
// other than Dial runs against a handle produced by a successful Dial.
type Driver[H any] interface {
	// Name identifies the engine in errors, logs and metrics.
	Name() string
	// Dial connects to target and verifies the connection.
	Dial(ctx context.Context, target string) (H, error)
	Ping(ctx context.Context, h H) error
	Close(ctx context.Context, h H) error

	// BatchRead returns the documents found among keys. Absent keys are
	// left out of the result.
	BatchRead(ctx context.Context, h H, keys []string) (Documents, error)
	// BatchWrite stores docs. Failures after some writes may have been
	// applied are returned as PartialFailure.
	BatchWrite(ctx context.Context, h H, docs Documents) error
	// Delete removes key; an absent key is not an error.
	Delete(ctx context.Context, h H, key string) error
	DeleteAll(ctx context.Context, h H) error
}

// Link receives connectivity changes a driver learns about asynchronously,
// such as heartbeat failures.
type Link interface {
	Down(err error)
	Up()
}

// LinkAware is implemented by drivers that report connectivity changes.
// BindLink is called once, before the first Dial.
type LinkAware interface {
	BindLink(link Link)
}

// TargetRedactor is implemented by drivers whose targets are not URLs and
// need their own credential masking before being logged.
type TargetRedactor interface {
	RedactTarget(target string) string
}

// Observer receives lifecycle and operation events, typically for metrics.
type Observer interface {
	ConnectAttempt(backend string, attempt int, err error)
	Operation(backend, operation string, duration time.Duration, err error)
}
