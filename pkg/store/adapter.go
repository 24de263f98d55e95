package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimburion/docstore/pkg/health"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/tracing"
	"github.com/nimburion/docstore/pkg/resilience"
)

// Adapter implements Client on top of a Driver.
//
// The handle is guarded by an RWMutex: operations hold the read lock for
// their whole duration and Disconnect takes the write lock, so no operation
// ever observes a handle that is being torn down. Connect and Disconnect are
// serialised with each other, so readiness handlers must not call them.
type Adapter[H any] struct {
	driver   Driver[H]
	name     string
	settings Settings
	opts     options
	log      logger.Logger
	signal   *health.Signal

	lifecycleMu sync.Mutex
	// emitMu orders probe outcomes against the disconnect emission.
	emitMu sync.Mutex

	mu     sync.RWMutex
	handle H
	live   bool

	// linked gates asynchronous link notifications to connected periods.
	linked atomic.Bool
}

var _ Client = (*Adapter[struct{}])(nil)

// NewAdapter returns a disconnected Adapter for driver.
func NewAdapter[H any](driver Driver[H], settings Settings, opts ...Option) *Adapter[H] {
	o := options{log: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.signal == nil {
		o.signal = health.NewSignal()
	}
	if settings.OperationTimeout == 0 {
		settings.OperationTimeout = DefaultOperationTimeout
	}

	a := &Adapter[H]{
		driver:   driver,
		name:     driver.Name(),
		settings: settings,
		opts:     o,
		log:      o.log.With("backend", driver.Name()),
		signal:   o.signal,
	}
	if aware, ok := driver.(LinkAware); ok {
		aware.BindLink(adapterLink[H]{a: a})
	}
	return a
}

// Backend names the engine.
func (a *Adapter[H]) Backend() string {
	return a.name
}

// Health returns the readiness signal.
func (a *Adapter[H]) Health() *health.Signal {
	return a.signal
}

// Connect establishes the connection. On an already connected adapter it
// re-emits ready and returns nil.
func (a *Adapter[H]) Connect(ctx context.Context) (err error) {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	a.mu.RLock()
	live := a.live
	a.mu.RUnlock()
	if live {
		a.signal.Emit(true)
		return nil
	}

	ctx, span := tracing.StartStoreSpan(ctx, a.name, "connect")
	start := time.Now()
	defer func() {
		a.observe("connect", start, err)
		tracing.End(span, err)
	}()

	_, err = resilience.ConnectWithRetry(ctx, resilience.RetryRequest[H]{
		Target: a.settings.Target,
		Policy: a.settings.Retry,
		Dial:   a.driver.Dial,
		Release: func(h H) {
			_ = a.driver.Close(context.Background(), h)
		},
		Accept: func(h H, _ resilience.Attempt) {
			a.mu.Lock()
			a.handle = h
			a.live = true
			a.mu.Unlock()
			a.linked.Store(true)
		},
		Emitter:     a.signal,
		OnConnected: a.connected,
		OnFailure:   a.attemptFailed,
	}, a.opts.retryOptions...)
	if err == nil {
		return nil
	}

	attempts := 0
	var retryErr *resilience.RetryError
	if errors.As(err, &retryErr) {
		attempts = retryErr.Attempts
	}
	a.log.Error("connection failed", "attempts", attempts, "error", err)
	return &Error{Kind: KindConnectionFailed, Op: "connect", Backend: a.name, Attempts: attempts, Err: err}
}

func (a *Adapter[H]) connected(attempt resilience.Attempt) {
	if a.opts.observer != nil {
		a.opts.observer.ConnectAttempt(a.name, attempt.Number, nil)
	}
	a.log.Info(fmt.Sprintf("%s connection established", a.name), "attempt", attempt.Number, "target", a.redact(attempt.Target))
	if a.opts.onConnected != nil {
		a.opts.onConnected(attempt)
	}
}

func (a *Adapter[H]) attemptFailed(attempt resilience.Attempt) (string, bool) {
	if a.opts.observer != nil {
		a.opts.observer.ConnectAttempt(a.name, attempt.Number, attempt.Err)
	}
	a.log.Warn("connection attempt failed", "attempt", attempt.Number, "target", a.redact(attempt.Target), "error", attempt.Err)
	if a.opts.failover != nil {
		return a.opts.failover(attempt)
	}
	return "", false
}

func (a *Adapter[H]) redact(target string) string {
	if r, ok := a.driver.(TargetRedactor); ok {
		return r.RedactTarget(target)
	}
	return RedactTarget(target)
}

// Disconnect closes the connection and emits not-ready. Without a live
// connection, including a second call, it returns ErrNotInitialized.
func (a *Adapter[H]) Disconnect(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	a.mu.Lock()
	if !a.live {
		a.mu.Unlock()
		return notInitialized(a.name, "disconnect")
	}
	h := a.handle
	var zero H
	a.handle = zero
	a.live = false
	a.linked.Store(false)
	a.mu.Unlock()

	err := a.driver.Close(ctx, h)
	a.emitMu.Lock()
	a.signal.Emit(false)
	a.emitMu.Unlock()
	if err != nil {
		a.log.Warn("error while closing connection", "error", err)
		return backendFailure(a.name, "disconnect", err)
	}
	a.log.Info(fmt.Sprintf("%s connection closed", a.name))
	return nil
}

// IsReady pings the backend, bounded by the retry policy's probe timeout,
// and emits the outcome. The connection is kept on failure.
func (a *Adapter[H]) IsReady(ctx context.Context) error {
	const op = "is_ready"
	h, release, err := a.acquire(op)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.settings.Retry.ProbeTimeout())
	err = a.driver.Ping(probeCtx, h)
	cancel()
	release()

	// A Disconnect that ran since the probe has already emitted not-ready;
	// a success must not follow it.
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if err != nil {
		a.signal.Emit(false)
		a.log.Warn("readiness probe failed", "error", err)
		return backendFailure(a.name, op, err)
	}
	if a.isLive() {
		a.signal.Emit(true)
	}
	return nil
}

func (a *Adapter[H]) isLive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// Get returns one entry per distinct key. Missing keys map to nil.
func (a *Adapter[H]) Get(ctx context.Context, keys []string) (result Documents, err error) {
	const op = "get"
	h, release, err := a.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	distinct, err := a.distinctKeys(op, keys)
	if err != nil {
		return nil, err
	}

	ctx, finish := a.begin(ctx, op, tracing.WithKeyCount(len(distinct)))
	defer func() { finish(err) }()

	found, readErr := a.driver.BatchRead(ctx, h, distinct)
	if readErr != nil {
		return nil, backendFailure(a.name, op, readErr)
	}

	result = make(Documents, len(distinct))
	for _, key := range distinct {
		result[key] = found[key]
	}
	return result, nil
}

// Set validates payload and writes it in one batch.
func (a *Adapter[H]) Set(ctx context.Context, payload map[string]any) (err error) {
	const op = "set"
	h, release, err := a.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	if !Validate(payload) {
		return invalidPayload(a.name, op, errors.New("payload must map non-blank keys to objects"))
	}
	docs := make(Documents, len(payload))
	for key, value := range payload {
		doc, normErr := Normalize(value)
		if normErr != nil {
			return invalidPayload(a.name, op, fmt.Errorf("key %q: %w", key, normErr))
		}
		docs[key] = doc
	}

	ctx, finish := a.begin(ctx, op, tracing.WithKeyCount(len(docs)))
	defer func() { finish(err) }()

	if writeErr := a.driver.BatchWrite(ctx, h, docs); writeErr != nil {
		return backendFailure(a.name, op, writeErr)
	}
	return nil
}

// Remove deletes key. Removing an absent key succeeds.
func (a *Adapter[H]) Remove(ctx context.Context, key string) (err error) {
	const op = "remove"
	h, release, err := a.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	if !validKey(key) {
		return invalidKey(a.name, op, errors.New("key is blank"))
	}

	ctx, finish := a.begin(ctx, op, tracing.WithKey(key))
	defer func() { finish(err) }()

	if deleteErr := a.driver.Delete(ctx, h, key); deleteErr != nil {
		return backendFailure(a.name, op, deleteErr)
	}
	return nil
}

// RemoveAll wipes the configured namespace.
func (a *Adapter[H]) RemoveAll(ctx context.Context) (err error) {
	const op = "remove_all"
	h, release, err := a.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	ctx, finish := a.begin(ctx, op)
	defer func() { finish(err) }()

	if deleteErr := a.driver.DeleteAll(ctx, h); deleteErr != nil {
		return backendFailure(a.name, op, deleteErr)
	}
	return nil
}

// acquire read-locks the handle. The returned release must be called once.
func (a *Adapter[H]) acquire(op string) (H, func(), error) {
	a.mu.RLock()
	if !a.live {
		a.mu.RUnlock()
		var zero H
		return zero, nil, notInitialized(a.name, op)
	}
	return a.handle, a.mu.RUnlock, nil
}

func (a *Adapter[H]) distinctKeys(op string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, invalidKey(a.name, op, errors.New("no keys given"))
	}
	seen := make(map[string]struct{}, len(keys))
	distinct := make([]string, 0, len(keys))
	for _, key := range keys {
		if !validKey(key) {
			return nil, invalidKey(a.name, op, fmt.Errorf("key %q is blank", key))
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		distinct = append(distinct, key)
	}
	return distinct, nil
}

// begin bounds ctx by the operation timeout unless the caller already set a
// deadline, and starts the span. finish ends both and reports the outcome.
func (a *Adapter[H]) begin(ctx context.Context, op string, spanOpts ...tracing.StoreSpanOption) (context.Context, func(error)) {
	start := time.Now()
	ctx, cancel := a.withOperationTimeout(ctx)
	ctx, span := tracing.StartStoreSpan(ctx, a.name, op, spanOpts...)
	return ctx, func(err error) {
		tracing.End(span, err)
		cancel()
		a.observe(op, start, err)
	}
}

func (a *Adapter[H]) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || a.settings.OperationTimeout < 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.settings.OperationTimeout)
}

func (a *Adapter[H]) observe(op string, start time.Time, err error) {
	if a.opts.observer != nil {
		a.opts.observer.Operation(a.name, op, time.Since(start), err)
	}
}

type adapterLink[H any] struct {
	a *Adapter[H]
}

func (l adapterLink[H]) Down(err error) {
	if !l.a.linked.Load() {
		return
	}
	if l.a.signal.Transition(false) {
		l.a.log.Warn("connection lost", "error", err)
	}
}

func (l adapterLink[H]) Up() {
	if !l.a.linked.Load() {
		return
	}
	if l.a.signal.Transition(true) {
		l.a.log.Info("connection restored")
	}
}
