package sqlite

import (
	"path/filepath"
	"testing"
)

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty path", cfg: Config{}, wantErr: true},
		{name: "unknown driver", cfg: Config{Path: ":memory:", Driver: "postgres"}, wantErr: true},
		{name: "memory default driver", cfg: Config{Path: ":memory:"}},
		{name: "memory cgo driver", cfg: Config{Path: ":memory:", Driver: DriverMattn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if db != nil {
				if err := db.Ping(); err != nil {
					t.Errorf("Ping failed: %v", err)
				}
				db.Close()
			}
		})
	}
}

func TestOpen_FileWithWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.db")

	db, err := Open(Config{Path: path, WALMode: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", stats.MaxOpenConnections)
	}
}
