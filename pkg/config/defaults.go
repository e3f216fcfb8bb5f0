package config

import "time"

// Default values for configuration fields.
const (
	// Store defaults
	DefaultStoreType      = "file"
	DefaultStorePath      = "./config"
	DefaultStoreAutoMerge = true
	DefaultConfigKey      = "model-router-config"
	DefaultBoltPath       = "data/configs.db"

	// Database defaults
	DefaultDatabasePath        = "data/config.db"
	DefaultDatabaseDriver      = "sqlite"
	DefaultDatabaseBusyTimeout = 5 * time.Second
	DefaultDatabaseWALMode     = true

	// Merge defaults
	DefaultMergePrefix   = "model-router-config"
	DefaultMergeBackup   = true
	DefaultMergeWatch    = false
	DefaultMergeDebounce = 500 * time.Millisecond

	// Retention defaults
	DefaultRetentionEnabled  = false
	DefaultRetentionSchedule = "0 3 * * *" // Daily at 3 AM
	DefaultKeepVersions      = 10

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Metrics defaults
	DefaultMetricsEnabled           = true
	DefaultMetricsListenAddress     = "127.0.0.1:9090"
	DefaultMetricsPath              = "/metrics"
	DefaultMetricsNamespace         = "routerstore"
	DefaultMetricsMaxKeyCardinality = 1000
)

// DefaultOperationDurationBuckets are the histogram buckets for store
// operations, in seconds. Store calls are local file or embedded database
// work, so the scale starts well below a millisecond.
var DefaultOperationDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}

// Default returns a configuration with every field set to its default.
// LoadConfig decodes YAML over this value, so booleans that default to true
// can still be switched off from a file.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type:      DefaultStoreType,
			Path:      DefaultStorePath,
			AutoMerge: DefaultStoreAutoMerge,
			ConfigKey: DefaultConfigKey,
			BoltPath:  DefaultBoltPath,
			Database: DatabaseConfig{
				Path:        DefaultDatabasePath,
				Driver:      DefaultDatabaseDriver,
				BusyTimeout: DefaultDatabaseBusyTimeout,
				WALMode:     DefaultDatabaseWALMode,
			},
		},
		Merge: MergeConfig{
			Prefix:   DefaultMergePrefix,
			Backup:   DefaultMergeBackup,
			Watch:    DefaultMergeWatch,
			Debounce: DefaultMergeDebounce,
		},
		Retention: RetentionConfig{
			Enabled:      DefaultRetentionEnabled,
			Schedule:     DefaultRetentionSchedule,
			KeepVersions: DefaultKeepVersions,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
			Metrics: MetricsConfig{
				Enabled:                  DefaultMetricsEnabled,
				ListenAddress:            DefaultMetricsListenAddress,
				Path:                     DefaultMetricsPath,
				Namespace:                DefaultMetricsNamespace,
				OperationDurationBuckets: append([]float64(nil), DefaultOperationDurationBuckets...),
				MaxKeyCardinality:        DefaultMetricsMaxKeyCardinality,
			},
		},
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
// Booleans are left alone: a zero bool is indistinguishable from an explicit
// false, so boolean defaults come from Default instead.
func ApplyDefaults(cfg *Config) {
	// Store defaults
	if cfg.Store.Type == "" {
		cfg.Store.Type = DefaultStoreType
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.ConfigKey == "" {
		cfg.Store.ConfigKey = DefaultConfigKey
	}
	if cfg.Store.BoltPath == "" {
		cfg.Store.BoltPath = DefaultBoltPath
	}
	if cfg.Store.Database.Path == "" {
		cfg.Store.Database.Path = DefaultDatabasePath
	}
	if cfg.Store.Database.Driver == "" {
		cfg.Store.Database.Driver = DefaultDatabaseDriver
	}
	if cfg.Store.Database.BusyTimeout == 0 {
		cfg.Store.Database.BusyTimeout = DefaultDatabaseBusyTimeout
	}

	// Merge defaults
	if cfg.Merge.Prefix == "" {
		cfg.Merge.Prefix = DefaultMergePrefix
	}
	if cfg.Merge.Debounce == 0 {
		cfg.Merge.Debounce = DefaultMergeDebounce
	}

	// Retention defaults
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.KeepVersions == 0 {
		cfg.Retention.KeepVersions = DefaultKeepVersions
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.OperationDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.OperationDurationBuckets = append([]float64(nil), DefaultOperationDurationBuckets...)
	}
	if cfg.Telemetry.Metrics.MaxKeyCardinality == 0 {
		cfg.Telemetry.Metrics.MaxKeyCardinality = DefaultMetricsMaxKeyCardinality
	}
}
