package store

import (
	"context"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// TestVersioning_Property checks that the version only moves on content
// changes and that history tracks it one to one.
func TestVersioning_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		vs, err := NewFileStore(FileOptions{Root: t.TempDir(), Logger: quietLogger()})
		if err != nil {
			rt.Fatalf("NewFileStore failed: %v", err)
		}
		ctx := context.Background()

		values := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 15).Draw(rt, "values")

		expected := 0
		last := -1
		for _, v := range values {
			got, err := vs.UpdateConfigVersion(ctx, "k", Document{"v": v}, "", "prop")
			if err != nil {
				rt.Fatalf("UpdateConfigVersion failed: %v", err)
			}
			if v != last {
				expected++
				last = v
			}
			if got != expected {
				rt.Fatalf("Expected version %d, got %d", expected, got)
			}
		}

		history, _ := vs.GetVersionHistory(ctx, "k", 0)
		if len(history) != expected {
			rt.Fatalf("Expected %d history entries, got %d", expected, len(history))
		}
		for i, h := range history {
			if h.Version != expected-i {
				rt.Fatalf("history[%d].Version = %d, want %d", i, h.Version, expected-i)
			}
		}

		latest, _ := vs.GetLatestConfig(ctx, "k")
		if !Equal(latest, Document{"v": last}) {
			rt.Fatalf("Latest %v does not match last write %d", latest, last)
		}
	})
}

// TestCleanup_Property checks that cleanup keeps exactly the newest
// snapshots, always including the current one.
func TestCleanup_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		vs, err := NewBoltStore(BoltOptions{Path: filepath.Join(t.TempDir(), "c.db"), Logger: quietLogger()})
		if err != nil {
			rt.Fatalf("NewBoltStore failed: %v", err)
		}
		defer vs.Close()
		ctx := context.Background()

		total := rapid.IntRange(1, 12).Draw(rt, "total")
		keep := rapid.IntRange(1, 14).Draw(rt, "keep")

		for i := 0; i < total; i++ {
			if _, err := vs.UpdateConfigVersion(ctx, "k", Document{"i": i}, "", "prop"); err != nil {
				rt.Fatalf("UpdateConfigVersion failed: %v", err)
			}
		}

		deleted, err := vs.CleanupOldVersions(ctx, "k", keep)
		if err != nil {
			rt.Fatalf("CleanupOldVersions failed: %v", err)
		}

		wantDeleted := max(total-keep, 0)
		if deleted != wantDeleted {
			rt.Fatalf("deleted = %d, want %d", deleted, wantDeleted)
		}

		versions, _ := vs.GetConfigVersions(ctx, "k")
		if len(versions) != total-wantDeleted {
			rt.Fatalf("kept %d versions, want %d", len(versions), total-wantDeleted)
		}
		if versions[len(versions)-1] != total {
			rt.Fatalf("current version %d missing from %v", total, versions)
		}

		meta, _ := vs.GetConfigMetadata(ctx, "k")
		if meta.TotalVersions != len(versions) || meta.CurrentVersion != total {
			rt.Fatalf("metadata out of sync: %+v vs %v", meta, versions)
		}
	})
}
