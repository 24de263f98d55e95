// Package metrics provides Prometheus metrics for the document store and its
// HTTP facade.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every docstore metric.
const Namespace = "docstore"

// Registry manages Prometheus metrics registration and exposure.
// Each Registry owns its collectors, so independent registries never share
// counters.
type Registry struct {
	registry *prometheus.Registry
	http     *HTTPMetrics
	store    *StoreObserver
}

// NewRegistry creates a registry with the HTTP and store metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Registry{
		registry: reg,
		http:     newHTTPMetrics(factory),
		store:    newStoreObserver(factory),
	}
}

// HTTP returns the request metrics fed by the HTTP middleware.
func (r *Registry) HTTP() *HTTPMetrics {
	return r.http
}

// Store returns the observer to pass to store.WithObserver.
func (r *Registry) Store() *StoreObserver {
	return r.store
}

// Register registers a custom Prometheus collector.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// MustRegister registers collectors and panics on error.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.registry.MustRegister(collectors...)
}

// Unregister removes a collector from the registry.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.registry.Unregister(collector)
}

// Handler returns an HTTP handler exposing the registry in Prometheus format.
//
// Example:
//
//	router.GET("/metrics", gin.WrapH(registry.Handler()))
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the underlying prometheus.Gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
