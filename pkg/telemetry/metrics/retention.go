package metrics

import (
	"time"

	"mercator-hq/modelrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RetentionMetrics tracks scheduled version cleanup.
//
// Metrics:
//   - routerstore_cleanup_runs_total: Cleanup runs by result
//   - routerstore_cleanup_versions_deleted_total: Versions removed by cleanup
//   - routerstore_cleanup_last_run_timestamp_seconds: Unix time of the last run
type RetentionMetrics struct {
	runsTotal       *prometheus.CounterVec
	versionsDeleted prometheus.Counter
	lastRun         prometheus.Gauge
}

// NewRetentionMetrics creates and registers retention metrics with the provided registry.
func NewRetentionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RetentionMetrics {
	rm := &RetentionMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cleanup_runs_total",
				Help:      "Total number of version cleanup runs",
			},
			[]string{"result"},
		),

		versionsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cleanup_versions_deleted_total",
				Help:      "Total number of versions removed by cleanup",
			},
		),

		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cleanup_last_run_timestamp_seconds",
				Help:      "Unix timestamp of the last cleanup run",
			},
		),
	}

	registry.MustRegister(
		rm.runsTotal,
		rm.versionsDeleted,
		rm.lastRun,
	)

	return rm
}

// RecordRun records one cleanup run over all keys.
func (rm *RetentionMetrics) RecordRun(deleted int, failed bool, at time.Time) {
	result := "success"
	if failed {
		result = "failure"
	}
	rm.runsTotal.WithLabelValues(result).Inc()
	rm.versionsDeleted.Add(float64(deleted))
	rm.lastRun.Set(float64(at.Unix()))
}
