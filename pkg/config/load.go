package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "ROUTERSTORE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Values from the file are decoded over Default, remaining zero values get
// defaults, and the result is validated. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. An empty path skips the file and starts
// from Default. Environment variables always take precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file (or defaults)
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format ROUTERSTORE_SECTION_FIELD. Unparseable
// values are reported rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	// Store overrides
	if val := os.Getenv(EnvPrefix + "STORE_TYPE"); val != "" {
		cfg.Store.Type = val
	}
	if val := os.Getenv(EnvPrefix + "STORE_PATH"); val != "" {
		cfg.Store.Path = val
	}
	if val := os.Getenv(EnvPrefix + "STORE_AUTO_MERGE"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError("STORE_AUTO_MERGE", val, err)
		}
		cfg.Store.AutoMerge = b
	}
	if val := os.Getenv(EnvPrefix + "STORE_CONFIG_KEY"); val != "" {
		cfg.Store.ConfigKey = val
	}
	if val := os.Getenv(EnvPrefix + "STORE_BOLT_PATH"); val != "" {
		cfg.Store.BoltPath = val
	}
	if val := os.Getenv(EnvPrefix + "STORE_DATABASE_PATH"); val != "" {
		cfg.Store.Database.Path = val
	}
	if val := os.Getenv(EnvPrefix + "STORE_DATABASE_DRIVER"); val != "" {
		cfg.Store.Database.Driver = val
	}

	// Merge overrides
	if val := os.Getenv(EnvPrefix + "MERGE_BACKUP"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError("MERGE_BACKUP", val, err)
		}
		cfg.Merge.Backup = b
	}
	if val := os.Getenv(EnvPrefix + "MERGE_DEBOUNCE"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("MERGE_DEBOUNCE", val, err)
		}
		cfg.Merge.Debounce = d
	}

	// Retention overrides
	if val := os.Getenv(EnvPrefix + "RETENTION_KEEP_VERSIONS"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return envError("RETENTION_KEEP_VERSIONS", val, err)
		}
		cfg.Retention.KeepVersions = i
	}

	// Telemetry overrides
	if val := os.Getenv(EnvPrefix + "LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv(EnvPrefix + "LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv(EnvPrefix + "METRICS_ENABLED"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError("METRICS_ENABLED", val, err)
		}
		cfg.Telemetry.Metrics.Enabled = b
	}
	if val := os.Getenv(EnvPrefix + "METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}

	return nil
}

func envError(name, val string, err error) error {
	return fmt.Errorf("invalid value %q for %s%s: %w", val, EnvPrefix, name, err)
}
