package config

import "time"

// Config is the root configuration structure for the router configuration store.
// It selects the storage backend, controls the legacy-file merge service and
// the retention scheduler, and configures logging and metrics.
type Config struct {
	// Store selects and configures the storage backend.
	Store StoreConfig `yaml:"store"`

	// Merge configures the legacy numbered-file merge service.
	Merge MergeConfig `yaml:"merge"`

	// Retention configures periodic cleanup of old versions.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig contains storage backend configuration.
type StoreConfig struct {
	// Type is the backend kind.
	// Options: "file", "memory", "table" (aliases "sqlite", "h2", "database"), "bolt"
	// Default: "file"
	Type string `yaml:"type"`

	// Path is the root directory of the file backend. Legacy merge input
	// files are also read from here.
	// Default: "./config"
	Path string `yaml:"path"`

	// AutoMerge runs the legacy-file merge once at startup.
	// Default: true
	AutoMerge bool `yaml:"auto_merge"`

	// ConfigKey is the canonical key that merged documents are stored under.
	// Default: "model-router-config"
	ConfigKey string `yaml:"config_key"`

	// BoltPath is the bbolt database file used by the bolt backend.
	// Default: "data/configs.db"
	BoltPath string `yaml:"bolt_path"`

	// Database configures the embedded SQL database of the table backend.
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig contains embedded SQLite configuration for the table backend.
type DatabaseConfig struct {
	// Path is the database file path.
	// Default: "data/config.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver name.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long a connection waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`
}

// MergeConfig contains configuration for the legacy-file merge service.
type MergeConfig struct {
	// Prefix is the legacy file name prefix; files are named {prefix}@{N}.json.
	// Default: "model-router-config"
	Prefix string `yaml:"prefix"`

	// Backup moves merged legacy files into a timestamped backup directory
	// instead of deleting them.
	// Default: true
	Backup bool `yaml:"backup"`

	// Watch re-runs the merge when legacy files appear while serving.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period after the last file event before a
	// watched merge runs.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`
}

// RetentionConfig contains configuration for version retention.
type RetentionConfig struct {
	// Enabled turns on the scheduled cleanup.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression (standard 5-field format).
	// Default: "0 3 * * *" (daily at 3 AM)
	Schedule string `yaml:"schedule"`

	// KeepVersions is how many of the newest versions each key keeps.
	// Default: 10
	KeepVersions int `yaml:"keep_versions"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where serve exposes the metrics endpoint.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "routerstore"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "" (none)
	Subsystem string `yaml:"subsystem"`

	// OperationDurationBuckets defines histogram buckets for store operation duration (seconds).
	// Default: [0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0]
	OperationDurationBuckets []float64 `yaml:"operation_duration_buckets"`

	// MaxKeyCardinality caps the number of distinct config_key label values.
	// Default: 1000
	MaxKeyCardinality int `yaml:"max_key_cardinality"`
}
