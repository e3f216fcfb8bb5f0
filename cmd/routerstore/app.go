package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/modelrouter/pkg/cli"
	"mercator-hq/modelrouter/pkg/config"
	"mercator-hq/modelrouter/pkg/database/sqlite"
	"mercator-hq/modelrouter/pkg/merge"
	"mercator-hq/modelrouter/pkg/store"
	"mercator-hq/modelrouter/pkg/telemetry/logging"
	"mercator-hq/modelrouter/pkg/telemetry/metrics"
)

// cliUser is recorded as the author of versions written from the command line
// when $USER is unset.
const cliUser = "routerstore"

// app holds everything a command needs. Commands build one, use it, and
// close it.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	manager   store.Manager
	db        *sql.DB
	out       io.Writer
	format    cli.OutputFormat
}

func newApp(cmd *cobra.Command) (*app, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		out:       cmd.OutOrStdout(),
		format:    format,
	}
	if err := a.openStore(); err != nil {
		return nil, err
	}
	return a, nil
}

// openStore builds the configured backend. The table backend gets an
// embedded SQLite handle owned by the app.
func (a *app) openStore() error {
	kind, err := store.ParseKind(a.cfg.Store.Type)
	if err != nil {
		return err
	}

	opts := store.Options{
		Path:     a.cfg.Store.Path,
		BoltPath: a.cfg.Store.BoltPath,
		Logger:   a.logger,
		Recorder: a.collector,
	}

	if kind == store.KindTable {
		db, err := sqlite.Open(sqlite.Config{
			Path:        a.cfg.Store.Database.Path,
			Driver:      a.cfg.Store.Database.Driver,
			BusyTimeout: a.cfg.Store.Database.BusyTimeout,
			WALMode:     a.cfg.Store.Database.WALMode,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		opts.DB = db
	}

	m, err := store.New(kind, opts)
	if err != nil {
		if a.db != nil {
			a.db.Close()
		}
		return err
	}
	a.manager = m

	a.logger.Debug("store opened", "type", string(kind), "path", a.cfg.Store.Path)
	return nil
}

// versioned returns the store as a VersionManager, failing for the memory
// backend which keeps no history.
func (a *app) versioned() (store.VersionManager, error) {
	vm, ok := store.AsVersionManager(a.manager)
	if !ok {
		return nil, &store.Error{
			Kind: store.KindUnsupportedStoreType,
			Op:   "open",
			Err:  fmt.Errorf("store type %q does not keep versions", a.manager.Kind()),
		}
	}
	return vm, nil
}

func (a *app) mergeService(vm store.VersionManager) *merge.Service {
	return merge.NewService(merge.Config{
		Dir:       a.cfg.Store.Path,
		Prefix:    a.cfg.Merge.Prefix,
		ConfigKey: a.cfg.Store.ConfigKey,
		Backup:    a.cfg.Merge.Backup,
		Enabled:   a.cfg.Store.AutoMerge,
	}, vm, logApplier{logger: a.logger}, a.logger, a.collector)
}

// print writes data in the selected output format.
func (a *app) print(data any) error {
	return cli.NewFormatter(a.format).FormatTo(a.out, data)
}

func (a *app) Close() error {
	var errs []error
	if a.manager != nil {
		errs = append(errs, a.manager.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// logApplier stands in for the router's apply-version endpoint. The store
// never pushes configuration; the router picks the new version up itself, so
// the CLI only records that an apply is due.
type logApplier struct {
	logger *slog.Logger
}

func (l logApplier) ApplyVersion(ctx context.Context, key string, version int) error {
	l.logger.InfoContext(ctx, "configuration version ready to apply", "key", key, "version", version)
	return nil
}

// currentUser names the author of a CLI write.
func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return cliUser
}

// commandContext tags the command's context with the invoking user so store
// and merge logs name who ran it.
func commandContext(cmd *cobra.Command) context.Context {
	return logging.WithUser(cmd.Context(), currentUser())
}

// readDocument decodes a JSON or YAML document from path, or stdin for "-".
func readDocument(path string, stdin io.Reader) (store.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, &store.Error{Kind: store.KindInvalidArgument, Op: "read", Err: errors.New("document is empty")}
	}

	var doc store.Document
	// JSON goes through the store codec so large integers keep every digit.
	if strings.HasPrefix(trimmed, "{") {
		if err := (store.JSONCodec{}).Unmarshal(data, &doc); err == nil {
			return doc, nil
		}
		doc = nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &store.Error{Kind: store.KindInvalidArgument, Op: "read", Err: fmt.Errorf("document is not a JSON or YAML object: %w", err)}
	}
	return doc, nil
}
