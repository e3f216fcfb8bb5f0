// Package config provides configuration management for the router
// configuration store.
//
// Configuration is loaded from a YAML file with optional environment variable
// overrides, filled with defaults and validated before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("routerstore.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("routerstore.yaml")
//
// LoadConfigWithEnvOverrides accepts an empty path, in which case it starts
// from Default.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention ROUTERSTORE_SECTION_FIELD:
//
//   - ROUTERSTORE_STORE_TYPE overrides store.type
//   - ROUTERSTORE_STORE_PATH overrides store.path
//   - ROUTERSTORE_STORE_AUTO_MERGE overrides store.auto_merge
//   - ROUTERSTORE_LOG_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// There is no package-level configuration instance. Callers load a Config
// once and pass it, or the values derived from it, to the components that
// need them.
//
// # Example Configuration
//
//	store:
//	  type: file
//	  path: ./config
//	  auto_merge: true
//	  config_key: model-router-config
//	merge:
//	  prefix: model-router-config
//	  backup: true
//	retention:
//	  enabled: true
//	  schedule: "0 3 * * *"
//	  keep_versions: 10
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	    listen_address: 127.0.0.1:9090
package config
