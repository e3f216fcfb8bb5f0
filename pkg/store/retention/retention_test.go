package retention

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"mercator-hq/modelrouter/pkg/store"
	"mercator-hq/modelrouter/pkg/telemetry/logging"
)

func quietLogger() *slog.Logger {
	return logging.Discard()
}

func newTestStore(t *testing.T) *store.VersionedStore {
	t.Helper()
	vs, err := store.NewFileStore(store.FileOptions{Root: t.TempDir(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return vs
}

func writeVersions(t *testing.T, vs store.VersionManager, key string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := vs.UpdateConfigVersion(context.Background(), key, store.Document{"i": i}, "", "test"); err != nil {
			t.Fatalf("UpdateConfigVersion failed: %v", err)
		}
	}
}

type runRecord struct {
	deleted int
	failed  bool
}

type fakeRecorder struct {
	runs []runRecord
}

func (r *fakeRecorder) RecordCleanupRun(deleted int, failed bool, _ time.Time) {
	r.runs = append(r.runs, runRecord{deleted, failed})
}

// failingStore fails cleanup for one key.
type failingStore struct {
	store.VersionManager
	failKey string
}

func (f *failingStore) CleanupOldVersions(ctx context.Context, key string, keep int) (int, error) {
	if key == f.failKey {
		return 0, errors.New("disk on fire")
	}
	return f.VersionManager.CleanupOldVersions(ctx, key, keep)
}

func TestPruner_Prune(t *testing.T) {
	vs := newTestStore(t)
	writeVersions(t, vs, "a", 5)
	writeVersions(t, vs, "b", 2)
	writeVersions(t, vs, "c", 4)

	rec := &fakeRecorder{}
	pruner := NewPruner(vs, &Config{KeepVersions: 2}, quietLogger(), rec)

	report, err := pruner.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if report.Keys != 3 {
		t.Errorf("Expected 3 keys examined, got %d", report.Keys)
	}
	if report.Deleted != 5 {
		t.Errorf("Expected 5 versions deleted, got %d", report.Deleted)
	}
	if report.PerKey["a"] != 3 || report.PerKey["c"] != 2 {
		t.Errorf("Unexpected per-key report: %v", report.PerKey)
	}
	if _, ok := report.PerKey["b"]; ok {
		t.Error("Expected untouched key to be absent from report")
	}

	versions, _ := vs.GetConfigVersions(context.Background(), "a")
	if len(versions) != 2 || versions[1] != 5 {
		t.Errorf("Expected versions [4 5], got %v", versions)
	}

	if len(rec.runs) != 1 || rec.runs[0] != (runRecord{5, false}) {
		t.Errorf("Unexpected recorded runs: %v", rec.runs)
	}
}

func TestPruner_ContinuesPastFailures(t *testing.T) {
	vs := newTestStore(t)
	writeVersions(t, vs, "a", 4)
	writeVersions(t, vs, "b", 4)

	rec := &fakeRecorder{}
	pruner := NewPruner(&failingStore{VersionManager: vs, failKey: "a"}, &Config{KeepVersions: 1}, quietLogger(), rec)

	report, err := pruner.Prune(context.Background())
	if err == nil || !strings.Contains(err.Error(), `cleanup "a"`) {
		t.Fatalf("Expected error naming key a, got %v", err)
	}
	if report.PerKey["b"] != 3 {
		t.Errorf("Expected b to be pruned despite a failing, got %v", report.PerKey)
	}
	if len(rec.runs) != 1 || !rec.runs[0].failed {
		t.Errorf("Expected a failed run to be recorded, got %v", rec.runs)
	}
}

func TestPruner_InvalidKeep(t *testing.T) {
	pruner := NewPruner(newTestStore(t), &Config{KeepVersions: 0}, quietLogger(), nil)
	if _, err := pruner.Prune(context.Background()); err == nil {
		t.Error("Expected error for non-positive keep")
	}
}

func TestPruner_CancelledContext(t *testing.T) {
	vs := newTestStore(t)
	writeVersions(t, vs, "a", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pruner := NewPruner(vs, &Config{KeepVersions: 1}, quietLogger(), nil)
	if _, err := pruner.Prune(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNewPruner_Defaults(t *testing.T) {
	pruner := NewPruner(newTestStore(t), nil, nil, nil)
	if pruner.config.KeepVersions != 10 || pruner.config.Schedule != "0 3 * * *" {
		t.Errorf("Unexpected default config: %+v", pruner.config)
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", wantRunning: true},
		{name: "valid hourly schedule", schedule: "0 * * * *", wantRunning: true},
		{name: "empty schedule - no error, not running", schedule: ""},
		{name: "invalid schedule", schedule: "invalid cron", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := NewPruner(newTestStore(t), &Config{KeepVersions: 3, Schedule: tt.schedule}, quietLogger(), nil)
			scheduler := NewScheduler(pruner)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}

			if tt.wantRunning {
				next := scheduler.NextRun()
				if next == nil {
					t.Error("NextRun() returned nil for running scheduler")
				} else if !next.After(time.Now()) {
					t.Errorf("NextRun() = %v, expected a future time", next)
				}
				scheduler.Stop()
				if scheduler.IsRunning() {
					t.Error("Expected scheduler to stop")
				}
			}
		})
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	pruner := NewPruner(newTestStore(t), &Config{KeepVersions: 3, Schedule: "0 3 * * *"}, quietLogger(), nil)
	scheduler := NewScheduler(pruner)
	ctx := context.Background()

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	if err := scheduler.Start(ctx); err == nil {
		t.Error("Expected error when starting twice")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	pruner := NewPruner(newTestStore(t), &Config{KeepVersions: 3, Schedule: "0 3 * * *"}, quietLogger(), nil)
	scheduler := NewScheduler(pruner)

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if scheduler.IsRunning() {
		t.Error("Expected scheduler to stop after context cancellation")
	}
}
