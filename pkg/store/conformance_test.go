package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/modelrouter/pkg/database/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFileStore(t testing.TB) *VersionedStore {
	t.Helper()
	vs, err := NewFileStore(FileOptions{Root: t.TempDir(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return vs
}

func newTestTableStore(t testing.TB) *VersionedStore {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "config.db")})
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vs, err := NewTableStore(TableOptions{DB: db, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewTableStore failed: %v", err)
	}
	return vs
}

func newTestBoltStore(t testing.TB) *VersionedStore {
	t.Helper()
	vs, err := NewBoltStore(BoltOptions{Path: filepath.Join(t.TempDir(), "configs.db"), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { vs.Close() })
	return vs
}

// versionedBackends runs fn once per versioned backend.
func versionedBackends(t *testing.T, fn func(t *testing.T, vm VersionManager)) {
	backends := []struct {
		name string
		open func(testing.TB) *VersionedStore
	}{
		{"file", newTestFileStore},
		{"table", newTestTableStore},
		{"bolt", newTestBoltStore},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open(t))
		})
	}
}

func mustUpdate(t *testing.T, vm VersionManager, key string, doc Document) int {
	t.Helper()
	v, err := vm.UpdateConfigVersion(context.Background(), key, doc, "test update", "tester")
	if err != nil {
		t.Fatalf("UpdateConfigVersion failed: %v", err)
	}
	return v
}

func assertDoc(t *testing.T, got, want Document) {
	t.Helper()
	if !Equal(got, want) {
		t.Errorf("Expected document %v, got %v", want, got)
	}
}

// TestVersionManager_Scenario walks the initialize, update, rollback and
// cleanup lifecycle of a single key.
func TestVersionManager_Scenario(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()

		res, err := vm.InitializeConfig(ctx, "svc", Document{"a": 1}, "bootstrap")
		if err != nil {
			t.Fatalf("InitializeConfig failed: %v", err)
		}
		if res.Version != 1 || res.AlreadyInitialized {
			t.Fatalf("Expected fresh version 1, got %+v", res)
		}

		// Unchanged content is a no-op
		if v := mustUpdate(t, vm, "svc", Document{"a": 1}); v != 1 {
			t.Errorf("Expected version 1 after no-op update, got %d", v)
		}
		history, _ := vm.GetVersionHistory(ctx, "svc", 0)
		if len(history) != 1 {
			t.Errorf("Expected 1 history entry, got %d", len(history))
		}

		if v := mustUpdate(t, vm, "svc", Document{"a": 2}); v != 2 {
			t.Errorf("Expected version 2, got %d", v)
		}
		history, _ = vm.GetVersionHistory(ctx, "svc", 0)
		if len(history) != 2 {
			t.Errorf("Expected 2 history entries, got %d", len(history))
		}

		v, err := vm.RollbackToVersion(ctx, "svc", 1, "revert", "tester")
		if err != nil {
			t.Fatalf("RollbackToVersion failed: %v", err)
		}
		if v != 3 {
			t.Errorf("Expected version 3 after rollback, got %d", v)
		}
		latest, _ := vm.GetLatestConfig(ctx, "svc")
		assertDoc(t, latest, Document{"a": 1})

		history, _ = vm.GetVersionHistory(ctx, "svc", 0)
		if len(history) != 3 {
			t.Fatalf("Expected 3 history entries, got %d", len(history))
		}
		if history[0].Version != 3 || history[0].ChangeType != ChangeRollback {
			t.Errorf("Expected newest entry to be rollback version 3, got %+v", history[0])
		}

		deleted, err := vm.CleanupOldVersions(ctx, "svc", 2)
		if err != nil {
			t.Fatalf("CleanupOldVersions failed: %v", err)
		}
		if deleted != 1 {
			t.Errorf("Expected 1 deleted version, got %d", deleted)
		}

		versions, _ := vm.GetConfigVersions(ctx, "svc")
		if fmt.Sprint(versions) != "[2 3]" {
			t.Errorf("Expected versions [2 3], got %v", versions)
		}
		if doc, err := vm.GetConfigByVersion(ctx, "svc", 1); err != nil || doc != nil {
			t.Errorf("Expected nil for cleaned version, got %v (err %v)", doc, err)
		}

		meta, err := vm.GetConfigMetadata(ctx, "svc")
		if err != nil || meta == nil {
			t.Fatalf("GetConfigMetadata failed: %v", err)
		}
		if meta.TotalVersions != 2 {
			t.Errorf("Expected totalVersions 2, got %d", meta.TotalVersions)
		}
		if meta.CurrentVersion != 3 {
			t.Errorf("Expected currentVersion 3, got %d", meta.CurrentVersion)
		}

		history, _ = vm.GetVersionHistory(ctx, "svc", 0)
		if len(history) != 2 {
			t.Errorf("Expected history trimmed to 2 entries, got %d", len(history))
		}
	})
}

func TestVersionManager_MonotonicVersioning(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		if _, err := vm.InitializeConfig(ctx, "k", Document{"n": 0}, ""); err != nil {
			t.Fatalf("InitializeConfig failed: %v", err)
		}

		const n = 5
		for i := 1; i <= n; i++ {
			if v := mustUpdate(t, vm, "k", Document{"n": i}); v != i+1 {
				t.Fatalf("Expected version %d, got %d", i+1, v)
			}
		}

		history, err := vm.GetVersionHistory(ctx, "k", 0)
		if err != nil {
			t.Fatalf("GetVersionHistory failed: %v", err)
		}
		if len(history) != n+1 {
			t.Fatalf("Expected %d history entries, got %d", n+1, len(history))
		}
		for i, h := range history {
			if want := n + 1 - i; h.Version != want {
				t.Errorf("Expected history[%d].Version = %d, got %d", i, want, h.Version)
			}
		}
		if history[n].ChangeType != ChangeInitial {
			t.Errorf("Expected oldest entry to be INITIAL, got %s", history[n].ChangeType)
		}
		if history[0].ChangeType != ChangeUpdate || history[0].CreatedBy != "tester" {
			t.Errorf("Unexpected newest entry: %+v", history[0])
		}
	})
}

func TestVersionManager_IdempotenceIgnoresKeyOrderAndNumberForm(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		doc := Document{
			"services": map[string]any{"chat": map[string]any{"timeout": 30, "enabled": true}},
			"limit":    1,
		}
		if v := mustUpdate(t, vm, "k", doc); v != 1 {
			t.Fatalf("Expected version 1, got %d", v)
		}

		same := Document{
			"limit":    1.0,
			"services": map[string]any{"chat": map[string]any{"enabled": true, "timeout": 30.0}},
		}
		if v := mustUpdate(t, vm, "k", same); v != 1 {
			t.Errorf("Expected semantically equal update to keep version 1, got %d", v)
		}
		history, _ := vm.GetVersionHistory(ctx, "k", 0)
		if len(history) != 1 {
			t.Errorf("Expected no new history entry, got %d entries", len(history))
		}
	})
}

func TestVersionManager_LargeIntegersSurvive(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		doc := Document{"budget": int64(9007199254740993)}

		if v := mustUpdate(t, vm, "k", doc); v != 1 {
			t.Fatalf("Expected version 1, got %d", v)
		}
		if v := mustUpdate(t, vm, "k", doc); v != 1 {
			t.Errorf("Expected identical update to keep version 1, got %d", v)
		}

		got, err := vm.GetLatestConfig(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if n, ok := got["budget"].(json.Number); !ok || n.String() != "9007199254740993" {
			t.Errorf("Expected exact budget, got %v (%T)", got["budget"], got["budget"])
		}

		if v := mustUpdate(t, vm, "k", Document{"budget": int64(9007199254740992)}); v != 2 {
			t.Errorf("Expected a one-unit change to create version 2, got %d", v)
		}
	})
}

func TestVersionManager_InitializeTwice(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		if _, err := vm.InitializeConfig(ctx, "k", Document{"a": 1}, ""); err != nil {
			t.Fatalf("InitializeConfig failed: %v", err)
		}
		mustUpdate(t, vm, "k", Document{"a": 2})

		res, err := vm.InitializeConfig(ctx, "k", Document{"a": 3}, "again")
		if err != nil {
			t.Fatalf("Expected no error on second initialize, got %v", err)
		}
		if !res.AlreadyInitialized || res.Version != 2 {
			t.Errorf("Expected AlreadyInitialized with version 2, got %+v", res)
		}

		latest, _ := vm.GetLatestConfig(ctx, "k")
		assertDoc(t, latest, Document{"a": 2})

		history, _ := vm.GetVersionHistory(ctx, "k", 0)
		if history[len(history)-1].Description != DefaultInitDescription {
			t.Errorf("Expected default description, got %q", history[len(history)-1].Description)
		}
	})
}

func TestVersionManager_UpdateInitializesUnknownKey(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		if v := mustUpdate(t, vm, "fresh", Document{"x": "y"}); v != 1 {
			t.Fatalf("Expected version 1, got %d", v)
		}
		ok, err := vm.IsConfigInitialized(ctx, "fresh")
		if err != nil || !ok {
			t.Errorf("Expected key to be initialized (err %v)", err)
		}
		history, _ := vm.GetVersionHistory(ctx, "fresh", 0)
		if len(history) != 1 || history[0].ChangeType != ChangeInitial || history[0].CreatedBy != "tester" {
			t.Errorf("Unexpected history after implicit initialize: %+v", history)
		}
	})
}

func TestVersionManager_RollbackPreservesHistory(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		mustUpdate(t, vm, "k", Document{"v": "one"})
		mustUpdate(t, vm, "k", Document{"v": "two"})
		mustUpdate(t, vm, "k", Document{"v": "three"})

		before, _ := vm.GetConfigByVersion(ctx, "k", 2)

		v, err := vm.RollbackToVersion(ctx, "k", 2, "", "ops")
		if err != nil {
			t.Fatalf("RollbackToVersion failed: %v", err)
		}
		if v != 4 {
			t.Fatalf("Expected version 4, got %d", v)
		}

		after, _ := vm.GetConfigByVersion(ctx, "k", 2)
		assertDoc(t, after, before)

		rolled, _ := vm.GetConfigByVersion(ctx, "k", 4)
		assertDoc(t, rolled, Document{"v": "two"})

		history, _ := vm.GetVersionHistory(ctx, "k", 1)
		if len(history) != 1 {
			t.Fatalf("Expected limit 1 to return 1 entry, got %d", len(history))
		}
		if history[0].ChangeType != ChangeRollback || history[0].CreatedBy != "ops" {
			t.Errorf("Unexpected rollback entry: %+v", history[0])
		}
		if history[0].Description != "Rollback to version 2" {
			t.Errorf("Expected default rollback description, got %q", history[0].Description)
		}

		meta, _ := vm.GetConfigMetadata(ctx, "k")
		if meta.LastModifiedBy != "ops" {
			t.Errorf("Expected lastModifiedBy ops, got %q", meta.LastModifiedBy)
		}
	})
}

func TestVersionManager_RollbackErrors(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()

		_, err := vm.RollbackToVersion(ctx, "missing", 1, "", "ops")
		if !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Expected ErrNotInitialized, got %v", err)
		}

		mustUpdate(t, vm, "k", Document{"a": 1})
		_, err = vm.RollbackToVersion(ctx, "k", 7, "", "ops")
		if !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("Expected ErrVersionNotFound, got %v", err)
		}
		_, err = vm.RollbackToVersion(ctx, "k", 0, "", "ops")
		if !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("Expected ErrVersionNotFound for version 0, got %v", err)
		}

		meta, _ := vm.GetConfigMetadata(ctx, "k")
		if meta.CurrentVersion != 1 {
			t.Errorf("Expected failed rollbacks to leave version 1, got %d", meta.CurrentVersion)
		}
	})
}

func TestVersionManager_CleanupBounds(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		for i := 0; i < 6; i++ {
			mustUpdate(t, vm, "k", Document{"i": i})
		}

		deleted, err := vm.CleanupOldVersions(ctx, "k", 3)
		if err != nil {
			t.Fatalf("CleanupOldVersions failed: %v", err)
		}
		if deleted != 3 {
			t.Errorf("Expected 3 deleted, got %d", deleted)
		}

		for v := 1; v <= 6; v++ {
			doc, err := vm.GetConfigByVersion(ctx, "k", v)
			if err != nil {
				t.Fatalf("GetConfigByVersion(%d) returned error: %v", v, err)
			}
			if v <= 3 && doc != nil {
				t.Errorf("Expected version %d to be gone", v)
			}
			if v > 3 && doc == nil {
				t.Errorf("Expected version %d to remain", v)
			}
		}

		// Nothing left to delete
		deleted, err = vm.CleanupOldVersions(ctx, "k", 3)
		if err != nil || deleted != 0 {
			t.Errorf("Expected no-op cleanup, got %d (err %v)", deleted, err)
		}

		// Updates continue from the current version
		if v := mustUpdate(t, vm, "k", Document{"i": 99}); v != 7 {
			t.Errorf("Expected version 7 after cleanup, got %d", v)
		}
	})
}

func TestVersionManager_CreatedAtSurvivesCleanup(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		vs := vm.(*VersionedStore)
		clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		vs.now = func() time.Time { return clock }

		created := clock
		for i := 1; i <= 3; i++ {
			mustUpdate(t, vm, "k", Document{"i": i})
			clock = clock.Add(time.Hour)
		}
		if _, err := vm.CleanupOldVersions(ctx, "k", 1); err != nil {
			t.Fatalf("CleanupOldVersions failed: %v", err)
		}

		meta, err := vm.GetConfigMetadata(ctx, "k")
		if err != nil || meta == nil {
			t.Fatalf("GetConfigMetadata failed: %v", err)
		}
		if !meta.CreatedAt.Equal(created) {
			t.Errorf("Expected CreatedAt %v after cleanup, got %v", created, meta.CreatedAt)
		}
		if !meta.LastModified.Equal(created.Add(2 * time.Hour)) {
			t.Errorf("Expected LastModified of version 3, got %v", meta.LastModified)
		}
	})
}

func TestVersionManager_CleanupValidation(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()

		for _, keep := range []int{0, -1} {
			if _, err := vm.CleanupOldVersions(ctx, "k", keep); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("keep=%d: expected ErrInvalidArgument, got %v", keep, err)
			}
		}
		if _, err := vm.CleanupOldVersions(ctx, "unknown", 1); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Expected ErrNotInitialized, got %v", err)
		}

		// keep=1 always retains the current version
		mustUpdate(t, vm, "k", Document{"a": 1})
		mustUpdate(t, vm, "k", Document{"a": 2})
		if _, err := vm.CleanupOldVersions(ctx, "k", 1); err != nil {
			t.Fatalf("CleanupOldVersions failed: %v", err)
		}
		latest, _ := vm.GetLatestConfig(ctx, "k")
		assertDoc(t, latest, Document{"a": 2})
		current, _ := vm.GetConfigByVersion(ctx, "k", 2)
		assertDoc(t, current, Document{"a": 2})
	})
}

func TestVersionManager_RoundTrip(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		docs := []Document{
			{"a": 1},
			{"a": 1, "b": []any{"x", "y"}},
			{"nested": map[string]any{"deep": map[string]any{"z": nil}}},
		}
		for _, d := range docs {
			mustUpdate(t, vm, "k", d)

			meta, _ := vm.GetConfigMetadata(ctx, "k")
			byVersion, _ := vm.GetConfigByVersion(ctx, "k", meta.CurrentVersion)
			latest, _ := vm.GetLatestConfig(ctx, "k")
			assertDoc(t, byVersion, latest)
			assertDoc(t, latest, d)
		}
	})
}

func TestVersionManager_DeleteConfig(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		mustUpdate(t, vm, "k", Document{"a": 1})
		mustUpdate(t, vm, "k", Document{"a": 2})
		mustUpdate(t, vm, "other", Document{"b": 1})

		if err := vm.DeleteConfig(ctx, "k"); err != nil {
			t.Fatalf("DeleteConfig failed: %v", err)
		}

		if ok, _ := vm.IsConfigInitialized(ctx, "k"); ok {
			t.Error("Expected key to be uninitialized after delete")
		}
		if ok, _ := vm.Exists(ctx, "k"); ok {
			t.Error("Expected Exists to be false after delete")
		}
		if doc, _ := vm.GetLatestConfig(ctx, "k"); doc != nil {
			t.Errorf("Expected nil latest after delete, got %v", doc)
		}
		if versions, _ := vm.GetConfigVersions(ctx, "k"); len(versions) != 0 {
			t.Errorf("Expected no versions after delete, got %v", versions)
		}
		if history, _ := vm.GetVersionHistory(ctx, "k", 0); len(history) != 0 {
			t.Errorf("Expected empty history after delete, got %d entries", len(history))
		}

		// Re-initialization starts over at version 1
		if v := mustUpdate(t, vm, "k", Document{"a": 3}); v != 1 {
			t.Errorf("Expected version 1 after re-initialize, got %d", v)
		}

		// Deleting an unknown key is a no-op
		if err := vm.DeleteConfig(ctx, "never-existed"); err != nil {
			t.Errorf("Expected no error deleting unknown key, got %v", err)
		}

		// Other keys are untouched
		other, _ := vm.GetLatestConfig(ctx, "other")
		assertDoc(t, other, Document{"b": 1})
	})
}

func TestVersionManager_GetAllKeys(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		for _, k := range []string{"zeta", "alpha", "model-router-config"} {
			mustUpdate(t, vm, k, Document{"k": k})
		}

		keys, err := vm.GetAllKeys(ctx)
		if err != nil {
			t.Fatalf("GetAllKeys failed: %v", err)
		}
		if fmt.Sprint(keys) != "[alpha model-router-config zeta]" {
			t.Errorf("Unexpected keys: %v", keys)
		}
	})
}

func TestVersionManager_DeleteConfigVersion(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		mustUpdate(t, vm, "k", Document{"a": 1})
		mustUpdate(t, vm, "k", Document{"a": 2})
		mustUpdate(t, vm, "k", Document{"a": 3})

		if err := vm.DeleteConfigVersion(ctx, "k", 3); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected deleting current version to fail with ErrInvalidArgument, got %v", err)
		}
		if err := vm.DeleteConfigVersion(ctx, "k", 9); !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("Expected ErrVersionNotFound, got %v", err)
		}
		if err := vm.DeleteConfigVersion(ctx, "k", 2); err != nil {
			t.Fatalf("DeleteConfigVersion failed: %v", err)
		}

		if ok, _ := vm.VersionExists(ctx, "k", 2); ok {
			t.Error("Expected version 2 to be gone")
		}
		if ok, _ := vm.VersionExists(ctx, "k", 1); !ok {
			t.Error("Expected version 1 to remain")
		}
		versions, _ := vm.GetConfigVersions(ctx, "k")
		if fmt.Sprint(versions) != "[1 3]" {
			t.Errorf("Expected versions [1 3], got %v", versions)
		}
		meta, _ := vm.GetConfigMetadata(ctx, "k")
		if meta.TotalVersions != 2 || meta.CurrentVersion != 3 {
			t.Errorf("Unexpected metadata after version delete: %+v", meta)
		}
	})
}

func TestVersionManager_BasicContract(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()

		if err := vm.SaveConfig(ctx, "k", Document{"a": 1}); err != nil {
			t.Fatalf("SaveConfig failed: %v", err)
		}
		if err := vm.UpdateConfig(ctx, "k", Document{"b": 2}); err != nil {
			t.Fatalf("UpdateConfig failed: %v", err)
		}

		// Versioned backends replace rather than merge
		doc, _ := vm.GetConfig(ctx, "k")
		assertDoc(t, doc, Document{"b": 2})

		history, _ := vm.GetVersionHistory(ctx, "k", 1)
		if history[0].Description != "legacy op" || history[0].CreatedBy != SystemUser {
			t.Errorf("Unexpected legacy history entry: %+v", history[0])
		}

		if ok, _ := vm.Exists(ctx, "k"); !ok {
			t.Error("Expected Exists to be true")
		}
		if doc, err := vm.GetConfig(ctx, "nope"); err != nil || doc != nil {
			t.Errorf("Expected nil for unknown key, got %v (err %v)", doc, err)
		}
	})
}

func TestVersionManager_Validation(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()

		_, updateErr := vm.UpdateConfigVersion(ctx, "", Document{}, "", "")
		_, initErr := vm.InitializeConfig(ctx, "k", nil, "")
		_, latestErr := vm.GetLatestConfig(ctx, "")

		checks := []struct {
			name string
			err  error
		}{
			{"save empty key", vm.SaveConfig(ctx, "", Document{})},
			{"save nil doc", vm.SaveConfig(ctx, "k", nil)},
			{"delete empty key", vm.DeleteConfig(ctx, "")},
			{"update empty key", updateErr},
			{"initialize nil doc", initErr},
			{"latest empty key", latestErr},
		}

		for _, c := range checks {
			if !errors.Is(c.err, ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", c.name, c.err)
			}
		}
	})
}

func TestVersionManager_ConcurrentUpdates(t *testing.T) {
	versionedBackends(t, func(t *testing.T, vm VersionManager) {
		ctx := context.Background()
		const writers = 10

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := vm.UpdateConfigVersion(ctx, "k", Document{"writer": i}, "", "w"); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent update failed: %v", err)
		}

		meta, _ := vm.GetConfigMetadata(ctx, "k")
		if meta.CurrentVersion != writers {
			t.Errorf("Expected version %d, got %d", writers, meta.CurrentVersion)
		}
		versions, _ := vm.GetConfigVersions(ctx, "k")
		if len(versions) != writers {
			t.Errorf("Expected %d stored versions, got %d", writers, len(versions))
		}

		latest, _ := vm.GetLatestConfig(ctx, "k")
		current, _ := vm.GetConfigByVersion(ctx, "k", meta.CurrentVersion)
		assertDoc(t, latest, current)
	})
}
