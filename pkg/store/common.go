package store

import (
	"time"

	"github.com/nimburion/docstore/pkg/resilience"
)

// Common holds the settings every backend configuration accepts.
type Common struct {
	// Retry is nil when the configuration does not mention it; the client
	// then makes a single connection attempt.
	Retry *resilience.RetryPolicy `mapstructure:"retry"`
	// Failover lists alternate targets tried in turn after failed attempts.
	Failover         []string      `mapstructure:"failover"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// RetryPolicy returns the configured policy or the zero policy.
func (c Common) RetryPolicy() resilience.RetryPolicy {
	if c.Retry == nil {
		return resilience.RetryPolicy{}
	}
	return *c.Retry
}

// Validate checks the retry policy and failover targets.
func (c Common) Validate(backend string) error {
	if err := c.RetryPolicy().Validate(); err != nil {
		return InvalidConfiguration(backend, "%v", err)
	}
	for i, target := range c.Failover {
		if !validKey(target) {
			return InvalidConfiguration(backend, "failover[%d] is blank", i)
		}
	}
	return nil
}

// Settings builds adapter settings for the given primary target.
func (c Common) Settings(target string) Settings {
	return Settings{
		Target:           target,
		Retry:            c.RetryPolicy(),
		OperationTimeout: c.OperationTimeout,
	}
}

// Options returns the adapter options implied by the configuration.
func (c Common) Options(primary string) []Option {
	if len(c.Failover) == 0 {
		return nil
	}
	return []Option{WithFailover(RotateTargets(primary, c.Failover...))}
}

// RotateTargets returns a failover hook that moves to the next target after
// every failed attempt, wrapping around to primary.
func RotateTargets(primary string, alternates ...string) func(resilience.Attempt) (string, bool) {
	targets := append([]string{primary}, alternates...)
	return func(attempt resilience.Attempt) (string, bool) {
		// attempt n used targets[(n-1) % len]; the next one follows it
		return targets[attempt.Number%len(targets)], true
	}
}
