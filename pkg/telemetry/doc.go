// Package telemetry groups the observability packages used by routerstore.
//
//   - logging: slog loggers built from telemetry.logging, with context fields
//     for the operation id, config key and user
//   - metrics: Prometheus collectors for store operations, merges and
//     retention runs, served from a private registry
//   - health: liveness and readiness endpoints mounted next to the metrics
//     endpoint by routerstore serve
//
// Wiring in a command:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	m, err := store.New(kind, store.Options{Path: dir, Logger: logger, Recorder: collector})
package telemetry
