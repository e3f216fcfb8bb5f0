package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/modelrouter/pkg/config"
	"mercator-hq/modelrouter/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                  true,
		Namespace:                "test",
		OperationDurationBuckets: []float64{0.001, 0.01, 0.1},
		MaxKeyCardinality:        3,
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.config != cfg {
		t.Error("Collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_DefaultsApplied(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	collector := NewCollector(cfg, nil)

	if collector.Registry() == nil {
		t.Fatal("Expected a registry to be created")
	}
	if cfg.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Expected default namespace, got %q", cfg.Namespace)
	}
	if cfg.MaxKeyCardinality != config.DefaultMetricsMaxKeyCardinality {
		t.Errorf("Expected default cardinality, got %d", cfg.MaxKeyCardinality)
	}
}

func TestCollector_ObserveOperation(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.ObserveOperation("file", "update", nil, 2*time.Millisecond)
	collector.ObserveOperation("file", "update", nil, 3*time.Millisecond)
	collector.ObserveOperation("file", "rollback", store.ErrVersionNotFound, time.Millisecond)
	collector.ObserveOperation("table", "update", fmt.Errorf("boom"), time.Millisecond)

	ops := collector.storeMetrics.operationsTotal
	if got := testutil.ToFloat64(ops.WithLabelValues("file", "update", "success")); got != 2 {
		t.Errorf("Expected 2 successful updates, got %v", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues("file", "rollback", "version_not_found")); got != 1 {
		t.Errorf("Expected 1 version_not_found rollback, got %v", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues("table", "update", "error")); got != 1 {
		t.Errorf("Expected 1 untyped error, got %v", got)
	}
	if n := testutil.CollectAndCount(collector.storeMetrics.operationDuration); n != 3 {
		t.Errorf("Expected 3 duration series, got %d", n)
	}
}

func TestCollector_SetCurrentVersion(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	gauge := collector.storeMetrics.currentVersion

	collector.SetCurrentVersion("a", 4)
	if got := testutil.ToFloat64(gauge.WithLabelValues("a")); got != 4 {
		t.Errorf("Expected version 4, got %v", got)
	}

	// Zero removes the series
	collector.SetCurrentVersion("a", 0)
	if n := testutil.CollectAndCount(gauge); n != 0 {
		t.Errorf("Expected no series after delete, got %d", n)
	}
}

func TestCollector_KeyCardinalityOverflow(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	for i := 0; i < 5; i++ {
		collector.SetCurrentVersion(fmt.Sprintf("k%d", i), i+1)
	}

	// Limit is 3 distinct keys; the rest share "other"
	if n := testutil.CollectAndCount(collector.storeMetrics.currentVersion); n != 4 {
		t.Errorf("Expected 4 series (3 keys + other), got %d", n)
	}
	if got := testutil.ToFloat64(collector.storeMetrics.currentVersion.WithLabelValues(overflowKey)); got != 5 {
		t.Errorf("Expected other to hold the last overflow value 5, got %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.ObserveOperation("file", "update", nil, time.Millisecond)
	collector.SetCurrentVersion("k", 1)
	collector.RecordMerge("merge", true, 2, 0)
	collector.RecordCleanupRun(3, false, time.Now())

	if n := testutil.CollectAndCount(collector.storeMetrics.operationsTotal); n != 0 {
		t.Errorf("Expected no operation series when disabled, got %d", n)
	}
	if n := testutil.CollectAndCount(collector.mergeMetrics.runsTotal); n != 0 {
		t.Errorf("Expected no merge series when disabled, got %d", n)
	}
	if got := testutil.ToFloat64(collector.retentionMetrics.versionsDeleted); got != 0 {
		t.Errorf("Expected no deletions recorded when disabled, got %v", got)
	}
}

func TestCollector_RecordMerge(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordMerge("merge", true, 3, 1)
	collector.RecordMerge("merge", false, 0, 2)

	mm := collector.mergeMetrics
	if got := testutil.ToFloat64(mm.runsTotal.WithLabelValues("merge", "success")); got != 1 {
		t.Errorf("Expected 1 successful merge, got %v", got)
	}
	if got := testutil.ToFloat64(mm.runsTotal.WithLabelValues("merge", "failure")); got != 1 {
		t.Errorf("Expected 1 failed merge, got %v", got)
	}
	if got := testutil.ToFloat64(mm.filesTotal.WithLabelValues("merge")); got != 3 {
		t.Errorf("Expected 3 files, got %v", got)
	}
	if got := testutil.ToFloat64(mm.errorsTotal.WithLabelValues("merge")); got != 3 {
		t.Errorf("Expected 3 errors, got %v", got)
	}
}

func TestCollector_RecordCleanupRun(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	at := time.Unix(1700000000, 0)

	collector.RecordCleanupRun(4, false, at)
	collector.RecordCleanupRun(1, true, at.Add(time.Hour))

	rm := collector.retentionMetrics
	if got := testutil.ToFloat64(rm.versionsDeleted); got != 5 {
		t.Errorf("Expected 5 deleted versions, got %v", got)
	}
	if got := testutil.ToFloat64(rm.runsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("Expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(rm.lastRun); got != float64(at.Add(time.Hour).Unix()) {
		t.Errorf("Unexpected last run timestamp %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.ObserveOperation("bolt", "update", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_operations_total{backend="bolt",operation="update",result="success"} 1`) {
		t.Errorf("Expected operation counter in output, got:\n%s", rec.Body.String())
	}
}

// TestCollector_StoreIntegration drives a real store with the collector as recorder.
func TestCollector_StoreIntegration(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	vs, err := store.NewFileStore(store.FileOptions{
		Root:     t.TempDir(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: collector,
	})
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	if _, err := vs.UpdateConfigVersion(ctx, "svc", store.Document{"a": 1}, "", "tester"); err != nil {
		t.Fatalf("UpdateConfigVersion failed: %v", err)
	}
	if _, err := vs.UpdateConfigVersion(ctx, "svc", store.Document{"a": 2}, "", "tester"); err != nil {
		t.Fatalf("UpdateConfigVersion failed: %v", err)
	}

	if got := testutil.ToFloat64(collector.storeMetrics.currentVersion.WithLabelValues("svc")); got != 2 {
		t.Errorf("Expected current version gauge 2, got %v", got)
	}
	if n := testutil.CollectAndCount(collector.storeMetrics.operationsTotal); n == 0 {
		t.Error("Expected store operations to be counted")
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("Expected first two values to be allowed")
	}
	if cl.Allow("c") {
		t.Error("Expected third value to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("Expected known value to stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Expected count 2, got %d", cl.Count())
	}
}

func TestResultLabel(t *testing.T) {
	tests := map[string]error{
		"success":            nil,
		"error":              fmt.Errorf("plain"),
		"invalid_argument":   store.ErrInvalidArgument,
		"security_violation": fmt.Errorf("wrapped: %w", store.ErrSecurityViolation),
	}
	for want, err := range tests {
		if got := resultLabel(err); got != want {
			t.Errorf("resultLabel(%v) = %q, want %q", err, got, want)
		}
	}
}
