package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "store.type").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// validStoreTypes mirrors the kinds and aliases accepted by store.ParseKind.
var validStoreTypes = map[string]bool{
	"file":     true,
	"memory":   true,
	"table":    true,
	"sqlite":   true,
	"h2":       true,
	"database": true,
	"bolt":     true,
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateMerge(&cfg.Merge)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateStore validates storage backend configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	storeType := strings.ToLower(strings.TrimSpace(cfg.Type))
	if storeType == "" {
		errs = append(errs, FieldError{
			Field:   "store.type",
			Message: "store type is required",
		})
	} else if !validStoreTypes[storeType] {
		errs = append(errs, FieldError{
			Field:   "store.type",
			Message: fmt.Sprintf("unsupported store type %q: must be 'file', 'memory', 'table' or 'bolt'", cfg.Type),
		})
	}

	if cfg.ConfigKey == "" {
		errs = append(errs, FieldError{
			Field:   "store.config_key",
			Message: "config key is required",
		})
	}

	switch storeType {
	case "file":
		if cfg.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.path",
				Message: "path is required for the file store",
			})
		}
	case "bolt":
		if cfg.BoltPath == "" {
			errs = append(errs, FieldError{
				Field:   "store.bolt_path",
				Message: "bolt path is required for the bolt store",
			})
		}
	case "table", "sqlite", "h2", "database":
		errs = append(errs, validateDatabase(&cfg.Database)...)
	}

	return errs
}

// validateDatabase validates the table backend's database settings.
func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "store.database.path",
			Message: "database path is required for the table store",
		})
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
		errs = append(errs, FieldError{
			Field:   "store.database.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.Driver),
		})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "store.database.busy_timeout",
			Message: "busy timeout must be non-negative",
		})
	}

	return errs
}

// validateMerge validates merge service configuration.
func validateMerge(cfg *MergeConfig) []FieldError {
	var errs []FieldError

	if cfg.Prefix == "" {
		errs = append(errs, FieldError{
			Field:   "merge.prefix",
			Message: "prefix is required",
		})
	} else if strings.ContainsAny(cfg.Prefix, `/\`) {
		errs = append(errs, FieldError{
			Field:   "merge.prefix",
			Message: "prefix must not contain path separators",
		})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "merge.debounce",
			Message: "debounce must be non-negative",
		})
	}

	return errs
}

// validateRetention validates version retention configuration.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.KeepVersions <= 0 {
		errs = append(errs, FieldError{
			Field:   "retention.keep_versions",
			Message: "keep versions must be positive",
		})
	}
	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.Schedule, err),
			})
		}
	}

	return errs
}

// validateTelemetry validates logging and metrics configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if !cfg.Metrics.Enabled {
		return errs
	}

	if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/' when metrics are enabled",
		})
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.Metrics.ListenAddress, err),
		})
	}
	if cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.namespace",
			Message: "namespace is required when metrics are enabled",
		})
	}
	for i, b := range cfg.Metrics.OperationDurationBuckets {
		if b <= 0 || (i > 0 && b <= cfg.Metrics.OperationDurationBuckets[i-1]) {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.operation_duration_buckets",
				Message: "buckets must be positive and strictly increasing",
			})
			break
		}
	}
	if cfg.Metrics.MaxKeyCardinality < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.max_key_cardinality",
			Message: "max key cardinality must be non-negative",
		})
	}

	return errs
}
