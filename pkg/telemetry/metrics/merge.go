package metrics

import (
	"mercator-hq/modelrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// MergeMetrics tracks legacy-file merge runs.
//
// Metrics:
//   - routerstore_merge_runs_total: Merge service runs by operation and result
//   - routerstore_merge_files_total: Legacy files processed
//   - routerstore_merge_errors_total: Per-file errors recorded during runs
type MergeMetrics struct {
	runsTotal   *prometheus.CounterVec
	filesTotal  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
}

// NewMergeMetrics creates and registers merge metrics with the provided registry.
func NewMergeMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *MergeMetrics {
	mm := &MergeMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "merge_runs_total",
				Help:      "Total number of legacy merge service runs",
			},
			[]string{"operation", "result"},
		),

		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "merge_files_total",
				Help:      "Total number of legacy files processed by the merge service",
			},
			[]string{"operation"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "merge_errors_total",
				Help:      "Total number of per-file errors recorded by the merge service",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		mm.runsTotal,
		mm.filesTotal,
		mm.errorsTotal,
	)

	return mm
}

// RecordRun records one merge service run.
func (mm *MergeMetrics) RecordRun(operation string, success bool, files, errs int) {
	result := "success"
	if !success {
		result = "failure"
	}
	mm.runsTotal.WithLabelValues(operation, result).Inc()
	mm.filesTotal.WithLabelValues(operation).Add(float64(files))
	mm.errorsTotal.WithLabelValues(operation).Add(float64(errs))
}
