package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, registry *Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	if registry == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if registry.HTTP() == nil {
		t.Fatal("expected HTTP metrics")
	}
	if registry.Store() == nil {
		t.Fatal("expected a store observer")
	}
}

func TestRegistry_Handler(t *testing.T) {
	registry := NewRegistry()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	contentType := rec.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "application/openmetrics-text") {
		t.Errorf("unexpected content type: %s", contentType)
	}
}

func TestRegistry_RuntimeMetricsExposed(t *testing.T) {
	body := scrape(t, NewRegistry())

	expectedMetrics := []string{
		"go_goroutines",
		"go_memstats",
		"process_cpu_seconds_total",
		"http_requests_in_flight",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metric %s not found in output", metric)
		}
	}
}

func TestRegistry_RegisterCustomMetric(t *testing.T) {
	registry := NewRegistry()

	customCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_custom_counter",
		Help: "A test custom counter",
	})
	if err := registry.Register(customCounter); err != nil {
		t.Fatalf("failed to register custom metric: %v", err)
	}
	customCounter.Inc()

	if body := scrape(t, registry); !strings.Contains(body, "test_custom_counter 1") {
		t.Error("custom metric value not correct")
	}
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	registry := NewRegistry()

	customCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_duplicate_counter",
		Help: "A test counter for duplicate registration",
	})
	registry.MustRegister(customCounter)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate registration, but didn't panic")
		}
	}()
	registry.MustRegister(customCounter)
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	customCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_unregister_counter",
		Help: "A test counter for unregistration",
	})
	if err := registry.Register(customCounter); err != nil {
		t.Fatalf("failed to register metric: %v", err)
	}
	if !registry.Unregister(customCounter) {
		t.Error("Unregister returned false")
	}
	if body := scrape(t, registry); strings.Contains(body, "test_unregister_counter") {
		t.Error("metric still found after unregistration")
	}
}

func TestRegistry_Gatherer(t *testing.T) {
	metricFamilies, err := NewRegistry().Gatherer().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Error("expected non-zero metric families")
	}
}

func TestRegistry_MultipleInstances(t *testing.T) {
	registry1 := NewRegistry()
	registry2 := NewRegistry()

	registry1.HTTP().Record("GET", "/v1/documents", 200, 0)

	if body := scrape(t, registry1); !strings.Contains(body, `path="/v1/documents"`) {
		t.Error("registry1 missing its own request")
	}
	if body := scrape(t, registry2); strings.Contains(body, `path="/v1/documents"`) {
		t.Error("registry2 has registry1's request")
	}
}
