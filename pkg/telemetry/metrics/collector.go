package metrics

import (
	"sync"
	"time"

	"mercator-hq/modelrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// overflowKey replaces config_key label values once the cardinality limit is reached.
const overflowKey = "other"

// Collector is the main orchestrator for the store's Prometheus metrics.
// It manages metric registration and provides a unified interface for
// recording metrics from the store, the merge service and the retention
// scheduler.
//
// Collector implements store.Recorder, merge.Recorder and retention.Recorder,
// so the same value is handed to each component at wiring time.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	storeMetrics     *StoreMetrics
	mergeMetrics     *MergeMetrics
	retentionMetrics *RetentionMetrics

	// Cardinality tracking for the config_key label
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "routerstore",
//	}
//	collector := metrics.NewCollector(cfg, nil)
//	vs, err := store.NewFileStore(store.FileOptions{Root: dir, Recorder: collector})
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.OperationDurationBuckets) == 0 {
		cfg.OperationDurationBuckets = append([]float64(nil), config.DefaultOperationDurationBuckets...)
	}
	if cfg.MaxKeyCardinality <= 0 {
		cfg.MaxKeyCardinality = config.DefaultMetricsMaxKeyCardinality
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		storeMetrics:       NewStoreMetrics(cfg, registry),
		mergeMetrics:       NewMergeMetrics(cfg, registry),
		retentionMetrics:   NewRetentionMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(cfg.MaxKeyCardinality),
	}
}

// ObserveOperation records the outcome and duration of a store operation.
//
// Parameters:
//   - backend: Store kind ("file", "table", "bolt")
//   - operation: Operation name (e.g., "update", "rollback", "cleanup")
//   - err: The operation's error, nil on success
//   - duration: Operation duration
func (c *Collector) ObserveOperation(backend, operation string, err error, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.storeMetrics.RecordOperation(backend, operation, resultLabel(err), duration)
}

// SetCurrentVersion updates the current version gauge for a key.
// Keys past the cardinality limit are aggregated into "other".
func (c *Collector) SetCurrentVersion(key string, version int) {
	if !c.config.Enabled {
		return
	}

	if !c.cardinalityLimiter.Allow(key) {
		key = overflowKey
	}
	c.storeMetrics.SetVersion(key, version)
}

// RecordMerge records a merge service run.
//
// Parameters:
//   - operation: "merge", "merge_versions", "backup" or "cleanup"
//   - success: Whether the run reported success
//   - files: Number of legacy files processed
//   - errors: Number of per-file errors
func (c *Collector) RecordMerge(operation string, success bool, files, errors int) {
	if !c.config.Enabled {
		return
	}

	c.mergeMetrics.RecordRun(operation, success, files, errors)
}

// RecordCleanupRun records one scheduled retention run.
func (c *Collector) RecordCleanupRun(deleted int, failed bool, at time.Time) {
	if !c.config.Enabled {
		return
	}

	c.retentionMetrics.RecordRun(deleted, failed, at)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this value would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
