// Package sqlite opens the embedded SQLite database used by the table store.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure-Go driver, registered as "sqlite"
)

const (
	// DriverModernc is the pure-Go driver and the default.
	DriverModernc = "sqlite"

	// DriverMattn is the cgo driver.
	DriverMattn = "sqlite3"
)

// Config configures the database handle.
type Config struct {
	// Path is the database file. ":memory:" opens an in-memory database.
	Path string

	// Driver selects the registered driver name. Default: "sqlite".
	Driver string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WALMode enables write-ahead logging.
	WALMode bool
}

// Open opens the database described by cfg. SQLite supports a single writer,
// so the pool is limited to one connection.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q (must be %q or %q)", cfg.Driver, DriverModernc, DriverMattn)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := configure(db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func configure(db *sql.DB, cfg Config) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if cfg.WALMode && cfg.Path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
			return fmt.Errorf("failed to set synchronous mode: %w", err)
		}
	}
	return nil
}
