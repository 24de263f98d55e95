package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics tracks requests served by the HTTP facade.
type HTTPMetrics struct {
	// labels: method, path, status
	duration *prometheus.HistogramVec
	// labels: method, path, status
	total    *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newHTTPMetrics(factory promauto.Factory) *HTTPMetrics {
	return &HTTPMetrics{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		total: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
	}
}

// Record updates the duration histogram and the request counter. path should
// be the route template, not the raw URL, to keep label cardinality bounded.
func (m *HTTPMetrics) Record(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.duration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
	m.total.WithLabelValues(method, path, statusStr).Inc()
}

// IncrementInFlight increments the in-flight requests gauge.
func (m *HTTPMetrics) IncrementInFlight() {
	m.inFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests gauge.
func (m *HTTPMetrics) DecrementInFlight() {
	m.inFlight.Dec()
}
