// Package metrics provides Prometheus metrics for the router configuration store.
//
// # Metrics Categories
//
//   - Store Metrics: operation counts and durations per backend, current version per key
//   - Merge Metrics: legacy merge runs, files processed and per-file errors
//   - Retention Metrics: scheduled cleanup runs and versions removed
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	vs, err := store.NewFileStore(store.FileOptions{Root: root, Recorder: collector})
//	svc := merge.NewService(mergeCfg, vs, applier, logger, collector)
//	pruner := retention.NewPruner(vs, &retention.Config{KeepVersions: 10, Schedule: "0 3 * * *"}, logger, collector)
//	sched := retention.NewScheduler(pruner)
//
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Every metric is registered on the collector's own registry rather than the
// Prometheus default registry, so several collectors can coexist in tests.
//
// # Cardinality
//
// Operation and result labels are bounded by construction. The config_key
// label of the current-version gauge is capped by MaxKeyCardinality; keys
// beyond the cap are aggregated into "other".
package metrics
