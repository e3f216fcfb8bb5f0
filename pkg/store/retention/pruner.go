package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/modelrouter/pkg/store"
)

// Config contains configuration for version retention.
type Config struct {
	// KeepVersions is how many of the newest versions each key keeps.
	KeepVersions int

	// Schedule is a cron expression for scheduling cleanup.
	// Example: "0 3 * * *" (daily at 3 AM)
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		KeepVersions: 10,
		Schedule:     "0 3 * * *",
	}
}

// Recorder receives the outcome of each cleanup run.
type Recorder interface {
	RecordCleanupRun(deleted int, failed bool, at time.Time)
}

type nopRecorder struct{}

func (nopRecorder) RecordCleanupRun(int, bool, time.Time) {}

// Report summarizes one cleanup run.
type Report struct {
	// Keys is the number of keys examined.
	Keys int `json:"keys"`

	// Deleted is the total number of versions removed.
	Deleted int `json:"deleted"`

	// PerKey maps each key that lost versions to how many it lost.
	PerKey map[string]int `json:"perKey"`
}

// Pruner applies the keep-N policy to every key of a version manager.
type Pruner struct {
	store    store.VersionManager
	config   *Config
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewPruner creates a new retention pruner. A nil config uses DefaultConfig,
// a nil logger uses slog.Default and a nil recorder discards run outcomes.
func NewPruner(vm store.VersionManager, config *Config, logger *slog.Logger, recorder Recorder) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Pruner{
		store:    vm,
		config:   config,
		logger:   logger.With("component", "store.retention"),
		recorder: recorder,
		now:      time.Now,
	}
}

// Prune runs CleanupOldVersions over every stored key.
//
// A failure on one key does not stop the others; all per-key failures are
// joined into the returned error alongside a report of what was deleted.
// Keys deleted between listing and cleanup are skipped.
func (p *Pruner) Prune(ctx context.Context) (Report, error) {
	report := Report{PerKey: make(map[string]int)}

	if p.config.KeepVersions <= 0 {
		return report, fmt.Errorf("keep versions must be positive, got %d", p.config.KeepVersions)
	}

	keys, err := p.store.GetAllKeys(ctx)
	if err != nil {
		p.recorder.RecordCleanupRun(0, true, p.now())
		return report, fmt.Errorf("failed to list keys: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Keys++

		deleted, err := p.store.CleanupOldVersions(ctx, key, p.config.KeepVersions)
		if errors.Is(err, store.ErrNotInitialized) {
			p.logger.Debug("skipping uninitialized key", "config_key", key)
			continue
		}
		if err != nil {
			p.logger.Error("version cleanup failed", "config_key", key, "error", err)
			errs = append(errs, fmt.Errorf("cleanup %q: %w", key, err))
			continue
		}
		if deleted > 0 {
			report.PerKey[key] = deleted
			report.Deleted += deleted
		}
	}

	joined := errors.Join(errs...)
	p.recorder.RecordCleanupRun(report.Deleted, joined != nil, p.now())

	if report.Deleted == 0 {
		p.logger.Debug("no versions pruned",
			"keys", report.Keys,
			"keep_versions", p.config.KeepVersions,
		)
	} else {
		p.logger.Info("version pruning completed",
			"keys", report.Keys,
			"total_deleted", report.Deleted,
			"keep_versions", p.config.KeepVersions,
		)
	}

	return report, joined
}
