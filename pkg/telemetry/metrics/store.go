package metrics

import (
	"strings"
	"time"

	"mercator-hq/modelrouter/pkg/config"
	"mercator-hq/modelrouter/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks configuration store operations.
//
// Metrics:
//   - routerstore_operations_total: Store operations by backend, operation and result
//   - routerstore_operation_duration_seconds: Store operation duration
//   - routerstore_current_version: Current version per configuration key
type StoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	currentVersion    *prometheus.GaugeVec
}

// NewStoreMetrics creates and registers store metrics with the provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "operations_total",
				Help:      "Total number of configuration store operations",
			},
			[]string{"backend", "operation", "result"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Duration of configuration store operations in seconds",
				Buckets:   cfg.OperationDurationBuckets,
			},
			[]string{"backend", "operation"},
		),

		currentVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "current_version",
				Help:      "Current version number of each configuration key",
			},
			[]string{"config_key"},
		),
	}

	registry.MustRegister(
		sm.operationsTotal,
		sm.operationDuration,
		sm.currentVersion,
	)

	return sm
}

// RecordOperation records one store operation.
func (sm *StoreMetrics) RecordOperation(backend, operation, result string, duration time.Duration) {
	sm.operationsTotal.WithLabelValues(backend, operation, result).Inc()
	sm.operationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// SetVersion sets the current version gauge for a key. A version of zero
// means the key was deleted and removes the series.
func (sm *StoreMetrics) SetVersion(key string, version int) {
	if version <= 0 {
		sm.currentVersion.DeleteLabelValues(key)
		return
	}
	sm.currentVersion.WithLabelValues(key).Set(float64(version))
}

// resultLabel maps an operation error to a bounded label value: "success",
// the snake_case store error kind, or "error" for anything else.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	kind := store.KindOf(err)
	if kind == 0 {
		return "error"
	}
	return strings.ReplaceAll(kind.String(), " ", "_")
}
