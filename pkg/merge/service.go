package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"mercator-hq/modelrouter/pkg/store"
	"mercator-hq/modelrouter/pkg/telemetry/logging"

	"github.com/google/uuid"
)

// Operation names passed to the Recorder.
const (
	OpMerge         = "merge"
	OpMergeVersions = "merge_versions"
	OpBackup        = "backup"
	OpCleanup       = "cleanup"
)

// mergeUser is recorded as the author of versions written by MergeVersions.
const mergeUser = "auto-merge"

// Service consolidates legacy numbered snapshots into the canonical key.
// Runs are serialized.
type Service struct {
	config   Config
	store    store.VersionManager
	applier  Applier
	logger   *slog.Logger
	recorder Recorder
	codec    store.Codec
	now      func() time.Time

	mu sync.Mutex
}

// NewService creates a merge service. applier, logger and recorder may be nil.
func NewService(cfg Config, vm store.VersionManager, applier Applier, logger *slog.Logger, recorder Recorder) *Service {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.ConfigKey == "" {
		cfg.ConfigKey = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		config:   cfg,
		store:    vm,
		applier:  applier,
		logger:   logger.With("component", "merge"),
		recorder: recorder,
		codec:    store.JSONCodec{},
		now:      time.Now,
	}
}

// Config returns the service configuration with defaults applied.
func (s *Service) Config() Config {
	return s.config
}

// Scan lists the legacy snapshots currently in the directory.
func (s *Service) Scan(ctx context.Context) ([]SourceFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Scan(s.config.Dir, s.config.Prefix, s.logger)
}

// Preview reads and merges the legacy snapshots without writing anything.
func (s *Service) Preview(ctx context.Context) (*Preview, error) {
	sources, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	docs, read, errs := s.readSources(ctx, sources)
	preview := newPreview(len(docs), errs)
	if sources != nil {
		preview.Sources = sources
	}
	if len(docs) > 0 {
		preview.fill(MergeWithConflicts(fileLabels(read), docs...), docs)
	}
	return preview, nil
}

// PreviewVersions merges the stored versions of the canonical key the way
// MergeVersions would, without writing anything.
func (s *Service) PreviewVersions(ctx context.Context) (*Preview, error) {
	src, err := s.readVersions(ctx)
	if err != nil {
		return nil, err
	}
	preview := newPreview(len(src.docs), src.errs)
	preview.Versions = src.stored
	if len(src.docs) > 0 {
		preview.fill(MergeWithConflicts(versionLabels(src.read), src.docs...), src.docs)
	}
	return preview, nil
}

// Merge folds every readable legacy snapshot into version 1 of the canonical
// key, asks the applier to load it, then backs up or deletes the merged files.
// With backups on, the key's stored versions are copied into the backup
// directory before the reset, and a failed copy aborts the run.
//
// Unreadable files are recorded in Result.Errors and left in place. When no
// file can be read the store is not touched.
func (s *Service) Merge(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.newResult()
	defer s.record(OpMerge, res)

	ctx = logging.WithOperationID(logging.WithConfigKey(ctx, s.config.ConfigKey), res.OperationID)
	s.logger.InfoContext(ctx, "starting legacy config merge", "dir", s.config.Dir, "prefix", s.config.Prefix)

	sources, err := s.Scan(ctx)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("scan failed: %w", err))
	}
	if len(sources) == 0 {
		res.Message = "no legacy configuration files found"
		return res
	}

	docs, read, errs := s.readSources(ctx, sources)
	res.Errors = append(res.Errors, errs...)
	if len(docs) == 0 {
		res.Message = "no legacy configuration file could be read"
		return res
	}

	outcome := MergeWithConflicts(fileLabels(read), docs...)
	s.addOutcome(ctx, res, outcome)
	merged := outcome.Merged
	merged[metadataKey] = map[string]any{
		"operation":   "merge",
		"mergedFiles": len(docs),
		"timestamp":   s.now().UnixMilli(),
		"operationId": res.OperationID,
	}

	// The reset below drops every stored version of the canonical key, so
	// they are copied out first.
	var backupDir string
	if s.config.Backup {
		dir, err := s.makeBackupDir()
		if err != nil {
			return s.fail(ctx, res, err)
		}
		if err := s.backupCanonical(ctx, dir); err != nil {
			return s.fail(ctx, res, fmt.Errorf("failed to back up %q: %w", s.config.ConfigKey, err))
		}
		backupDir = dir
		res.BackupDir = dir
	}

	if err := s.replaceCanonical(ctx, merged, len(docs)); err != nil {
		return s.fail(ctx, res, err)
	}

	res.Success = true
	res.MergedFiles = len(docs)
	res.ResultVersions = 1
	for _, f := range read {
		res.Files = append(res.Files, f.Path)
	}
	res.Message = fmt.Sprintf("merged %d configuration files into version 1", len(docs))

	if s.applier != nil {
		if err := s.applier.ApplyVersion(ctx, s.config.ConfigKey, 1); err != nil {
			s.logger.ErrorContext(ctx, "failed to apply merged configuration", "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("apply version 1: %v", err))
		}
	}

	if s.config.Backup {
		res.Errors = append(res.Errors, s.moveToBackup(backupDir, read)...)
	} else {
		res.Errors = append(res.Errors, s.removeFiles(read)...)
	}

	s.logger.InfoContext(ctx, "legacy config merge completed",
		"merged_files", res.MergedFiles,
		"errors", len(res.Errors),
		"backup_dir", res.BackupDir,
	)
	return res
}

// replaceCanonical resets the canonical key to the merged document as version 1.
// If initialization fails after the reset, the previous latest document is
// written back so the key is not left empty.
func (s *Service) replaceCanonical(ctx context.Context, merged store.Document, files int) error {
	key := s.config.ConfigKey

	previous, err := s.store.GetLatestConfig(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read current configuration: %w", err)
	}

	if err := s.store.DeleteConfig(ctx, key); err != nil {
		return fmt.Errorf("failed to reset %q: %w", key, err)
	}

	description := fmt.Sprintf("Merged %d legacy configuration files", files)
	if _, err := s.store.InitializeConfig(ctx, key, merged, description); err != nil {
		if previous != nil {
			if _, rerr := s.store.InitializeConfig(ctx, key, previous, "Restored after failed merge"); rerr != nil {
				s.logger.ErrorContext(ctx, "failed to restore configuration after merge failure", "error", rerr)
			}
		}
		return fmt.Errorf("failed to store merged configuration: %w", err)
	}
	return nil
}

// backupCanonical writes every stored version of the canonical key into dir
// as {stem}.v{N}.json, next to {stem}.metadata.json and {stem}.history.json.
// A key with nothing stored writes nothing.
func (s *Service) backupCanonical(ctx context.Context, dir string) error {
	key := s.config.ConfigKey

	versions, err := s.store.GetConfigVersions(ctx, key)
	if err != nil {
		return err
	}
	meta, err := s.store.GetConfigMetadata(ctx, key)
	if err != nil {
		return err
	}
	if len(versions) == 0 && meta == nil {
		return nil
	}

	stem, err := store.SanitizeKey(key)
	if err != nil {
		return err
	}
	for _, v := range versions {
		doc, err := s.store.GetConfigByVersion(ctx, key, v)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		if err := s.writeBackup(dir, fmt.Sprintf("%s.v%d.json", stem, v), doc); err != nil {
			return err
		}
	}
	if meta != nil {
		if err := s.writeBackup(dir, stem+".metadata.json", meta); err != nil {
			return err
		}
	}

	history, err := s.store.GetVersionHistory(ctx, key, 0)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		if err := s.writeBackup(dir, stem+".history.json", history); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "backed up canonical configuration", "dir", dir, "versions", len(versions))
	return nil
}

func (s *Service) writeBackup(dir, name string, v any) error {
	path, err := store.Within(dir, name)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return store.WriteFileAtomic(path, data)
}

// MergeVersions folds the stored versions of the canonical key, oldest
// first, and appends the result as a new version authored by "auto-merge".
// Earlier versions are kept. When the result matches the current version
// nothing is written and Result.Version reports the current version. The
// applier is asked to load a newly written version.
func (s *Service) MergeVersions(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.newResult()
	defer s.record(OpMergeVersions, res)

	key := s.config.ConfigKey
	ctx = logging.WithOperationID(logging.WithConfigKey(ctx, key), res.OperationID)
	s.logger.InfoContext(ctx, "starting stored version merge")

	src, err := s.readVersions(ctx)
	if err != nil {
		return s.fail(ctx, res, err)
	}
	res.Errors = append(res.Errors, src.errs...)
	if len(src.stored) == 0 {
		res.Message = fmt.Sprintf("no stored versions of %q", key)
		return res
	}
	if len(src.docs) == 0 {
		res.Message = fmt.Sprintf("no stored version of %q could be read", key)
		return res
	}

	outcome := MergeWithConflicts(versionLabels(src.read), src.docs...)
	s.addOutcome(ctx, res, outcome)
	res.MergedFiles = len(src.docs)
	res.MergedVersions = src.read

	meta, err := s.store.GetConfigMetadata(ctx, key)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("failed to read metadata: %w", err))
	}
	current, err := s.store.GetLatestConfig(ctx, key)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("failed to read current configuration: %w", err))
	}
	if meta != nil && current != nil && store.Equal(stripVolatile(current), outcome.Merged) {
		res.Success = true
		res.Version = meta.CurrentVersion
		res.ResultVersions = len(src.stored)
		res.Message = fmt.Sprintf("merged configuration matches version %d, nothing stored", meta.CurrentVersion)
		return res
	}

	merged := outcome.Merged
	merged[metadataKey] = map[string]any{
		"operation":      "merge_versions",
		"mergedVersions": src.read,
		"timestamp":      s.now().UnixMilli(),
		"operationId":    res.OperationID,
	}
	description := fmt.Sprintf("Merged stored versions %v", src.read)
	version, err := s.store.UpdateConfigVersion(ctx, key, merged, description, mergeUser)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("failed to store merged configuration: %w", err))
	}

	res.Success = true
	res.Version = version
	res.ResultVersions = len(src.stored) + 1
	if versions, err := s.store.GetConfigVersions(ctx, key); err == nil {
		res.ResultVersions = len(versions)
	}
	res.Message = fmt.Sprintf("merged %d stored versions into version %d", len(src.docs), version)

	if s.applier != nil {
		if err := s.applier.ApplyVersion(ctx, key, version); err != nil {
			s.logger.ErrorContext(ctx, "failed to apply merged configuration", "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("apply version %d: %v", version, err))
		}
	}

	s.logger.InfoContext(ctx, "stored version merge completed",
		"version", version,
		"merged_versions", len(src.read),
		"conflicts", len(res.Conflicts),
	)
	return res
}

// versionSources is what readVersions found for the canonical key.
type versionSources struct {
	stored []int
	read   []int
	docs   []store.Document
	errs   []string
}

// readVersions loads every stored version of the canonical key in ascending
// order. Unreadable and empty versions are reported in errs and skipped.
func (s *Service) readVersions(ctx context.Context) (versionSources, error) {
	var src versionSources
	key := s.config.ConfigKey

	stored, err := s.store.GetConfigVersions(ctx, key)
	if err != nil {
		return src, fmt.Errorf("failed to list versions of %q: %w", key, err)
	}
	src.stored = stored

	for _, v := range stored {
		if err := ctx.Err(); err != nil {
			src.errs = append(src.errs, err.Error())
			break
		}
		doc, err := s.store.GetConfigByVersion(ctx, key, v)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to read stored version", "version", v, "error", err)
			src.errs = append(src.errs, fmt.Sprintf("version %d: %v", v, err))
			continue
		}
		if len(doc) == 0 {
			src.errs = append(src.errs, fmt.Sprintf("version %d: empty configuration, skipped", v))
			continue
		}
		src.docs = append(src.docs, doc)
		src.read = append(src.read, v)
	}
	return src, nil
}

func (s *Service) addOutcome(ctx context.Context, res *Result, outcome Outcome) {
	res.Conflicts = append(res.Conflicts, outcome.Conflicts...)
	res.Warnings = append(res.Warnings, outcome.Warnings...)
	for _, c := range outcome.Conflicts {
		s.logger.WarnContext(ctx, "merge conflict", "detail", c)
	}
	for _, w := range outcome.Warnings {
		s.logger.InfoContext(ctx, "merge warning", "detail", w)
	}
}

func newPreview(total int, errs []string) *Preview {
	if errs == nil {
		errs = []string{}
	}
	return &Preview{
		Sources:    []SourceFile{},
		TotalFiles: total,
		Errors:     errs,
		Conflicts:  []string{},
		Warnings:   []string{},
	}
}

func (p *Preview) fill(outcome Outcome, docs []store.Document) {
	p.Merged = outcome.Merged
	p.Conflicts = append(p.Conflicts, outcome.Conflicts...)
	p.Warnings = append(p.Warnings, outcome.Warnings...)
	p.Stats = computeStats(docs, outcome.Merged)
}

func fileLabels(files []SourceFile) []string {
	labels := make([]string, len(files))
	for i, f := range files {
		labels[i] = f.Name()
	}
	return labels
}

func versionLabels(versions []int) []string {
	labels := make([]string, len(versions))
	for i, v := range versions {
		labels[i] = "version " + strconv.Itoa(v)
	}
	return labels
}

// Backup copies the legacy snapshots into a new backup directory and leaves
// the originals in place.
func (s *Service) Backup(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.newResult()
	defer s.record(OpBackup, res)

	sources, err := s.Scan(ctx)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("scan failed: %w", err))
	}
	if len(sources) == 0 {
		res.Message = "no legacy configuration files to back up"
		return res
	}

	dir, err := s.makeBackupDir()
	if err != nil {
		return s.fail(ctx, res, err)
	}
	res.BackupDir = dir

	for _, src := range sources {
		target := filepath.Join(dir, src.Name())
		if err := copyFile(src.Path, target); err != nil {
			s.logger.Error("failed to back up legacy file", "file", src.Path, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", src.Path, err))
			continue
		}
		res.Files = append(res.Files, target)
	}

	res.Success = true
	res.MergedFiles = len(res.Files)
	res.Message = fmt.Sprintf("backed up %d configuration files to %s", len(res.Files), dir)
	return res
}

// CleanupLegacyFiles deletes every legacy snapshot in the directory.
func (s *Service) CleanupLegacyFiles(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.newResult()
	defer s.record(OpCleanup, res)

	sources, err := s.Scan(ctx)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("scan failed: %w", err))
	}

	res.Errors = append(res.Errors, s.removeFiles(sources)...)
	for _, src := range sources {
		if _, err := os.Stat(src.Path); errors.Is(err, fs.ErrNotExist) {
			res.Files = append(res.Files, src.Path)
		}
	}

	res.Success = true
	res.MergedFiles = len(res.Files)
	res.Message = fmt.Sprintf("removed %d configuration files", len(res.Files))
	return res
}

// RunAtStartup merges legacy files when the service is enabled and there is
// anything to merge. It returns nil when nothing ran.
func (s *Service) RunAtStartup(ctx context.Context) *Result {
	if !s.config.Enabled {
		s.logger.Debug("auto merge disabled, skipping startup scan")
		return nil
	}
	sources, err := s.Scan(ctx)
	if err != nil {
		s.logger.Error("startup scan for legacy files failed", "error", err)
		return nil
	}
	if len(sources) == 0 {
		return nil
	}
	return s.Merge(ctx)
}

// readSources decodes each file in order. Failures are returned as messages
// and do not stop the remaining files.
func (s *Service) readSources(ctx context.Context, sources []SourceFile) ([]store.Document, []SourceFile, []string) {
	var (
		docs []store.Document
		read []SourceFile
		errs []string
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err.Error())
			break
		}
		doc, err := s.readDocument(src.Path)
		if err != nil {
			s.logger.Error("failed to read legacy file", "file", src.Path, "version", src.Version, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", src.Path, err))
			continue
		}
		docs = append(docs, doc)
		read = append(read, src)
	}
	return docs, read, errs
}

func (s *Service) readDocument(path string) (store.Document, error) {
	if _, err := store.Within(s.config.Dir, filepath.Base(path)); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc store.Document
	if err := s.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if doc == nil {
		return nil, errors.New("file holds no JSON object")
	}
	return doc, nil
}

func (s *Service) makeBackupDir() (string, error) {
	name := "backup_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	dir, err := store.Within(s.config.Dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	return dir, nil
}

func (s *Service) moveToBackup(dir string, files []SourceFile) []string {
	var errs []string
	for _, f := range files {
		if err := os.Rename(f.Path, filepath.Join(dir, f.Name())); err != nil {
			s.logger.Error("failed to move legacy file to backup", "file", f.Path, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", f.Path, err))
		}
	}
	return errs
}

func (s *Service) removeFiles(files []SourceFile) []string {
	var errs []string
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to delete legacy file", "file", f.Path, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", f.Path, err))
		}
	}
	return errs
}

func (s *Service) newResult() *Result {
	return &Result{
		Files:       []string{},
		Errors:      []string{},
		Conflicts:   []string{},
		Warnings:    []string{},
		OperationID: uuid.NewString(),
	}
}

func (s *Service) fail(ctx context.Context, res *Result, err error) *Result {
	s.logger.ErrorContext(ctx, "merge service run failed", "error", err)
	res.Success = false
	res.Message = err.Error()
	res.Errors = append(res.Errors, err.Error())
	return res
}

func (s *Service) record(op string, res *Result) {
	s.recorder.RecordMerge(op, res.Success, res.MergedFiles, len(res.Errors))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
