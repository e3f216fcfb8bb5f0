package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/modelrouter/pkg/cli"
	"mercator-hq/modelrouter/pkg/merge"
	"mercator-hq/modelrouter/pkg/store/retention"
	"mercator-hq/modelrouter/pkg/telemetry/health"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 2 * time.Second
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the store's background services",
	Long: `Run the long-lived services around the configuration store:

  - the startup merge of legacy files (store.auto_merge)
  - the legacy file watcher (merge.watch)
  - the scheduled version cleanup (retention.enabled)
  - the Prometheus metrics endpoint with /health, /ready and /version
    endpoints (telemetry.metrics.enabled)

The process runs until SIGINT or SIGTERM.

Examples:
  routerstore serve --config /etc/routerstore/config.yaml
  routerstore serve --metrics-listen 0.0.0.0:9090
  routerstore serve --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.listenAddress, "metrics-listen", "", "override telemetry.metrics.listen_address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config and open the store without serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveFlags.listenAddress != "" {
		a.cfg.Telemetry.Metrics.ListenAddress = serveFlags.listenAddress
	}

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	if serveFlags.dryRun {
		return a.print("configuration valid, store opened")
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	svc := a.mergeService(vm)
	if res := svc.RunAtStartup(ctx); res != nil {
		a.logger.Info("startup merge finished",
			"success", res.Success,
			"merged_files", res.MergedFiles,
			"errors", len(res.Errors),
		)
	}

	if a.cfg.Merge.Watch {
		watcher, err := merge.NewWatcher(merge.WatcherConfig{
			Dir:      a.cfg.Store.Path,
			Prefix:   a.cfg.Merge.Prefix,
			Debounce: a.cfg.Merge.Debounce,
		}, a.logger)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer watcher.Stop()

		go func() {
			err := watcher.Watch(ctx, func(ctx context.Context) error {
				if res := svc.Merge(ctx); !res.Success && len(res.Errors) > 0 {
					return errors.New(res.Message)
				}
				return nil
			})
			if err != nil {
				a.logger.Error("legacy file watcher exited", "error", err)
			}
		}()
	}

	if a.cfg.Retention.Enabled {
		pruner := retention.NewPruner(vm, &retention.Config{
			KeepVersions: a.cfg.Retention.KeepVersions,
			Schedule:     a.cfg.Retention.Schedule,
		}, a.logger, a.collector)
		scheduler := retention.NewScheduler(pruner)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer scheduler.Stop()
		if next := scheduler.NextRun(); next != nil {
			a.logger.Info("retention scheduler started", "next_run", next)
		}
	}

	errChan := make(chan error, 1)
	var srv *http.Server
	if a.cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Telemetry.Metrics.Path, a.collector.Handler())
		health.Register(mux, a.healthChecker(), Version, GitCommit, BuildDate)
		srv = &http.Server{
			Addr:              a.cfg.Telemetry.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("metrics endpoint listening",
				"address", srv.Addr,
				"path", a.cfg.Telemetry.Metrics.Path,
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	a.logger.Info("routerstore serving", "store", string(a.manager.Kind()), "path", a.cfg.Store.Path)

	select {
	case err := <-errChan:
		return cli.NewCommandError("serve", err)
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown failed", "error", err)
			return cli.NewCommandError("serve", err)
		}
	}
	return nil
}

// healthChecker checks the open store, and the SQLite handle when the table
// backend owns one.
func (a *app) healthChecker() *health.Checker {
	checker := health.New(healthCheckTimeout)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		_, err := a.manager.GetAllKeys(ctx)
		return err
	})
	if a.db != nil {
		checker.RegisterCheck("database", a.db.PingContext)
	}
	return checker
}
