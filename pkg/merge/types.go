package merge

import (
	"context"
	"path/filepath"

	"mercator-hq/modelrouter/pkg/store"
)

// DefaultPrefix is the legacy file name prefix used when Config.Prefix is empty.
const DefaultPrefix = "model-router-config"

// Config configures the merge service.
type Config struct {
	// Dir is the directory holding legacy {Prefix}@{N}.json files.
	Dir string

	// Prefix is the legacy file name prefix.
	Prefix string

	// ConfigKey is the canonical key the merged document is stored under.
	ConfigKey string

	// Backup moves merged files into a timestamped backup directory instead
	// of deleting them.
	Backup bool

	// Enabled gates RunAtStartup. Explicit calls to Merge, Preview, Backup
	// and CleanupLegacyFiles always run.
	Enabled bool
}

// SourceFile is one legacy snapshot found by Scan.
type SourceFile struct {
	Version int    `json:"version"`
	Path    string `json:"path"`
}

// Name returns the file's base name.
func (f SourceFile) Name() string {
	return filepath.Base(f.Path)
}

// Result is the structured outcome of a merge, backup or cleanup run.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// MergedFiles is the number of legacy files the run processed.
	MergedFiles int `json:"mergedFiles"`

	// ResultVersions is the number of versions the canonical key holds
	// afterwards: 1 after a merge, 0 for backup and cleanup.
	ResultVersions int `json:"resultVersions"`

	// Version is the version the merged document was stored as. A
	// MergeVersions run that changes nothing reports the current version.
	Version int `json:"version,omitempty"`

	// MergedVersions lists the stored versions a MergeVersions run folded.
	MergedVersions []int `json:"mergedVersions,omitempty"`

	// Files lists the processed file paths. For Backup these are the copies.
	Files []string `json:"files"`

	// Errors lists per-file failures. A failure here does not by itself
	// make the run unsuccessful.
	Errors []string `json:"errors"`

	// Conflicts lists values a later source overrode during the merge.
	Conflicts []string `json:"conflicts"`

	// Warnings lists merge irregularities that are not conflicts.
	Warnings []string `json:"warnings"`

	// BackupDir is where legacy files were moved or copied, if anywhere.
	BackupDir string `json:"backupDir,omitempty"`

	// OperationID identifies the run in logs.
	OperationID string `json:"operationId"`
}

// Preview is the would-be outcome of a merge. Nothing is written.
type Preview struct {
	Merged     store.Document `json:"mergedConfig,omitempty"`
	Sources    []SourceFile   `json:"sourceFiles"`
	Versions   []int          `json:"sourceVersions,omitempty"`
	TotalFiles int            `json:"totalFiles"`
	Errors     []string       `json:"errors"`
	Conflicts  []string       `json:"conflicts"`
	Warnings   []string       `json:"warnings"`
	Stats      Stats          `json:"mergeStatistics"`
}

// Stats describes how much merging collapsed the legacy snapshots.
type Stats struct {
	SourceVersionCount   int `json:"sourceVersionCount"`
	TotalServiceTypes    int `json:"totalServiceTypes"`
	TotalSourceInstances int `json:"totalSourceInstances"`
	MergedServiceTypes   int `json:"mergedServiceTypes"`
	MergedInstances      int `json:"mergedInstances"`
	InstanceReduction    int `json:"instanceReduction"`
}

// Applier pushes a stored version into the running router. The store never
// does this on its own.
type Applier interface {
	ApplyVersion(ctx context.Context, key string, version int) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, key string, version int) error

// ApplyVersion calls f.
func (f ApplierFunc) ApplyVersion(ctx context.Context, key string, version int) error {
	return f(ctx, key, version)
}

// Recorder receives the outcome of each run.
type Recorder interface {
	RecordMerge(operation string, success bool, files, errors int)
}

type nopRecorder struct{}

func (nopRecorder) RecordMerge(string, bool, int, int) {}
