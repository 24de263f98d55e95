package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nimburion/docstore/pkg/health"
)

func TestStoreObserver_ConnectAttempt(t *testing.T) {
	o := NewRegistry().Store()

	o.ConnectAttempt("redis", 1, errors.New("refused"))
	o.ConnectAttempt("redis", 2, errors.New("refused"))
	o.ConnectAttempt("redis", 3, nil)

	if got := testutil.ToFloat64(o.connectAttempts.WithLabelValues("redis", OutcomeFailure)); got != 2 {
		t.Errorf("expected 2 failed attempts, got %v", got)
	}
	if got := testutil.ToFloat64(o.connectAttempts.WithLabelValues("redis", OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 successful attempt, got %v", got)
	}
}

func TestStoreObserver_Operation(t *testing.T) {
	registry := NewRegistry()
	o := registry.Store()

	o.Operation("mongo", "get", 20*time.Millisecond, nil)
	o.Operation("mongo", "set", 30*time.Millisecond, errors.New("write conflict"))

	body := scrape(t, registry)
	expected := []string{
		`docstore_operation_duration_seconds_count{backend="mongo",operation="get",outcome="success"} 1`,
		`docstore_operation_duration_seconds_count{backend="mongo",operation="set",outcome="failure"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(body, line) {
			t.Errorf("expected %s in metrics output", line)
		}
	}
}

func TestStoreObserver_TrackReadiness(t *testing.T) {
	o := NewRegistry().Store()
	signal := health.NewSignal()
	signal.Emit(true)

	stop := o.TrackReadiness("memory", signal)
	gauge := o.ready.WithLabelValues("memory")
	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Fatalf("expected the current state to be mirrored, got %v", got)
	}

	signal.Emit(false)
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("expected 0 after not-ready, got %v", got)
	}

	stop()
	signal.Emit(true)
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("expected the gauge to stop following the signal, got %v", got)
	}
}
