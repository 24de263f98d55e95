package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nimburion/docstore/pkg/health"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// StoreObserver records store client activity. It satisfies store.Observer.
type StoreObserver struct {
	connectAttempts *prometheus.CounterVec
	ready           *prometheus.GaugeVec
	operations      *prometheus.HistogramVec
}

func newStoreObserver(factory promauto.Factory) *StoreObserver {
	return &StoreObserver{
		connectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "connect_attempts_total",
				Help:      "Connection attempts by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		ready: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "ready",
				Help:      "Last readiness emitted by the store client (1 ready, 0 not ready)",
			},
			[]string{"backend"},
		),
		operations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation", "outcome"},
		),
	}
}

// ConnectAttempt counts one connection attempt.
func (o *StoreObserver) ConnectAttempt(backend string, _ int, err error) {
	o.connectAttempts.WithLabelValues(backend, outcome(err)).Inc()
}

// Operation observes the duration of a store operation.
func (o *StoreObserver) Operation(backend, operation string, duration time.Duration, err error) {
	o.operations.WithLabelValues(backend, operation, outcome(err)).Observe(duration.Seconds())
}

// TrackReadiness mirrors signal into the ready gauge of backend until the
// returned function is called.
func (o *StoreObserver) TrackReadiness(backend string, signal *health.Signal) (stop func()) {
	gauge := o.ready.WithLabelValues(backend)
	gauge.Set(boolToFloat(signal.Ready()))
	return signal.Subscribe(func(ready bool) {
		gauge.Set(boolToFloat(ready))
	})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
