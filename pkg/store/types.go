package store

import (
	"context"
	"time"
)

// Document is one configuration snapshot: string keys with arbitrarily
// nested JSON-compatible values. The store enforces no schema.
type Document map[string]any

// ChangeType classifies how a version was produced.
type ChangeType string

const (
	// ChangeInitial marks version 1, created by InitializeConfig.
	ChangeInitial ChangeType = "INITIAL"

	// ChangeUpdate marks a content-changing UpdateConfigVersion.
	ChangeUpdate ChangeType = "UPDATE"

	// ChangeRollback marks a version created by RollbackToVersion.
	ChangeRollback ChangeType = "ROLLBACK"
)

// Metadata is the per-key bookkeeping record.
type Metadata struct {
	// ConfigKey is the key this record describes.
	ConfigKey string `json:"configKey"`

	// CurrentVersion is the version served by GetLatestConfig. It never
	// decreases over the lifetime of the key.
	CurrentVersion int `json:"currentVersion"`

	// InitialVersion is the first version of the key.
	InitialVersion int `json:"initialVersion"`

	// TotalVersions counts the stored versions. It drops below
	// CurrentVersion once CleanupOldVersions has removed old snapshots.
	TotalVersions int `json:"totalVersions"`

	// CreatedAt is when the key was initialized.
	CreatedAt time.Time `json:"createdAt"`

	// LastModified is when the current version was written.
	LastModified time.Time `json:"lastModified"`

	// LastModifiedBy identifies the user that wrote the current version.
	LastModifiedBy string `json:"lastModifiedBy"`
}

// VersionInfo is one entry of a key's append-only history.
type VersionInfo struct {
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	CreatedBy   string     `json:"createdBy"`
	Description string     `json:"description"`
	ChangeType  ChangeType `json:"changeType"`
}

// InitResult reports the outcome of InitializeConfig. When the key already
// existed, AlreadyInitialized is true and Version carries the current
// version; this is not an error.
type InitResult struct {
	Version            int
	AlreadyInitialized bool
}

// Manager is the basic contract: CRUD over named documents.
// Implementations must be thread-safe.
type Manager interface {
	// SaveConfig stores doc under key.
	SaveConfig(ctx context.Context, key string, doc Document) error

	// GetConfig returns the document stored under key, or nil if none.
	GetConfig(ctx context.Context, key string) (Document, error)

	// DeleteConfig removes everything stored under key. No-op if absent.
	DeleteConfig(ctx context.Context, key string) error

	// UpdateConfig replaces (or, for the memory backend, merges into) the
	// document stored under key.
	UpdateConfig(ctx context.Context, key string, doc Document) error

	// Exists reports whether key holds a document.
	Exists(ctx context.Context, key string) (bool, error)

	// GetAllKeys returns every stored key in ascending order.
	GetAllKeys(ctx context.Context) ([]string, error)

	// Kind identifies the backend.
	Kind() Kind

	// Close releases backend resources. The store must not be used after Close.
	Close() error
}

// VersionManager is the version-aware contract.
type VersionManager interface {
	Manager

	// InitializeConfig creates version 1 of key. Calling it again for an
	// initialized key logs a warning and returns the current version with
	// AlreadyInitialized set.
	InitializeConfig(ctx context.Context, key string, doc Document, description string) (InitResult, error)

	// UpdateConfigVersion writes doc as a new version and returns it. An
	// unchanged document returns the current version without writing. An
	// uninitialized key is initialized instead.
	UpdateConfigVersion(ctx context.Context, key string, doc Document, description, userID string) (int, error)

	// GetLatestConfig returns the current document, or nil if the key is unknown.
	GetLatestConfig(ctx context.Context, key string) (Document, error)

	// GetConfigByVersion returns the snapshot of one version, or nil if absent.
	GetConfigByVersion(ctx context.Context, key string, version int) (Document, error)

	// RollbackToVersion appends a new version whose content equals target.
	RollbackToVersion(ctx context.Context, key string, target int, description, userID string) (int, error)

	// GetConfigMetadata returns the key's metadata, or nil if uninitialized.
	GetConfigMetadata(ctx context.Context, key string) (*Metadata, error)

	// GetVersionHistory returns history entries newest first. A limit of 0
	// returns all entries.
	GetVersionHistory(ctx context.Context, key string, limit int) ([]VersionInfo, error)

	// IsConfigInitialized reports whether key has metadata.
	IsConfigInitialized(ctx context.Context, key string) (bool, error)

	// CleanupOldVersions deletes all but the keepVersions most recent
	// snapshots and returns how many were deleted.
	CleanupOldVersions(ctx context.Context, key string, keepVersions int) (int, error)

	// GetConfigVersions lists the stored version numbers in ascending order.
	GetConfigVersions(ctx context.Context, key string) ([]int, error)

	// VersionExists reports whether a readable snapshot exists for version.
	VersionExists(ctx context.Context, key string, version int) (bool, error)

	// DeleteConfigVersion removes a single non-current snapshot and its
	// history entry.
	DeleteConfigVersion(ctx context.Context, key string, version int) error
}

// Recorder receives operation outcomes. pkg/telemetry/metrics provides the
// Prometheus implementation.
type Recorder interface {
	ObserveOperation(backend, operation string, err error, duration time.Duration)
	SetCurrentVersion(key string, version int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, error, time.Duration) {}
func (nopRecorder) SetCurrentVersion(string, int)                          {}
