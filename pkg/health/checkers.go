package health

import (
	"context"
	"time"
)

// DefaultCheckTimeout bounds a StoreChecker probe when no timeout is given.
const DefaultCheckTimeout = 5 * time.Second

// Probe is implemented by store clients. IsReady contacts the backend.
type Probe interface {
	IsReady(ctx context.Context) error
}

// StoreChecker reports a store client healthy when its readiness probe succeeds.
type StoreChecker struct {
	name    string
	probe   Probe
	backend string
	timeout time.Duration
}

// NewStoreChecker creates a health checker for a store client
func NewStoreChecker(name, backend string, probe Probe, timeout time.Duration) *StoreChecker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	return &StoreChecker{
		name:    name,
		probe:   probe,
		backend: backend,
		timeout: timeout,
	}
}

// Check probes the store with the configured timeout
func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.probe.IsReady(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Metadata:  map[string]any{"backend": c.backend},
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = err.Error()
	}

	return result
}

// Name returns the name of the health check
func (c *StoreChecker) Name() string {
	return c.name
}

// SignalChecker reports the last value emitted on a Signal without touching
// the backend. It backs liveness endpoints that must stay cheap.
type SignalChecker struct {
	name   string
	signal *Signal
}

// NewSignalChecker creates a checker over a readiness signal
func NewSignalChecker(name string, signal *Signal) *SignalChecker {
	return &SignalChecker{name: name, signal: signal}
}

// Check returns healthy when the signal last emitted ready
func (c *SignalChecker) Check(context.Context) CheckResult {
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "connected",
		Timestamp: time.Now(),
	}
	if !c.signal.Ready() {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = "not connected"
	}
	return result
}

// Name returns the name of the health check
func (c *SignalChecker) Name() string {
	return c.name
}
