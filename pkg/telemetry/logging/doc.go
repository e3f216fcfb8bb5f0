// Package logging builds the structured loggers used across the store.
//
// # Overview
//
// The package configures Go's log/slog with:
//   - JSON or text output
//   - Configurable log levels (debug, info, warn, error)
//   - Context fields (request_id, user, config_key, operation_id) added to
//     every record logged through a *Context method
//
// Components never reach for a global logger. They receive a *slog.Logger
// and tag it with their component name:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	vs, err := store.NewFileStore(store.FileOptions{Root: root, Logger: logger})
//
//	ctx = logging.WithUser(ctx, "ops")
//	logger.InfoContext(ctx, "rollback requested", "version", 3)
package logging
