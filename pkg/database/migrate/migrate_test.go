package migrate

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"mercator-hq/modelrouter/pkg/database/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun(t *testing.T) {
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := Run(db, logger); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Second run is a no-op.
	if err := Run(db, logger); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("Version() = %d dirty=%v, want 2 clean", version, dirty)
	}

	if _, err := db.Exec(`INSERT INTO config_versions (config_key, config_value, version, created_at, updated_at, is_latest)
		VALUES ('k', '{}', 1, 0, 0, 1)`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	// The partial unique index allows only one latest row per key.
	if _, err := db.Exec(`INSERT INTO config_versions (config_key, config_value, version, created_at, updated_at, is_latest)
		VALUES ('k', '{}', 2, 0, 0, 1)`); err == nil {
		t.Error("Expected second latest row for the same key to be rejected")
	}
}

func TestDown(t *testing.T) {
	db := openTestDB(t)
	if err := Run(db, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := Down(db); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'config_versions'`).Scan(&n)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 0 {
		t.Error("Expected config_versions to be dropped")
	}
}
