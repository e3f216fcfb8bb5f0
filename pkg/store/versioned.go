package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"
)

const (
	// DefaultInitDescription is recorded when InitializeConfig is called
	// without a description.
	DefaultInitDescription = "Initial configuration"

	// SystemUser is recorded as the author of writes that carry no user.
	SystemUser = "system"

	legacyDescription = "legacy op"
)

// backend is the storage layer under VersionedStore. Implementations only
// move bytes; locking, version allocation and idempotence live in the
// engine. Absent items are reported with ok=false or a nil result, never
// with an error.
type backend interface {
	readMeta(ctx context.Context, key string) (*Metadata, error)
	readActive(ctx context.Context, key string) (data []byte, ok bool, err error)
	readVersion(ctx context.Context, key string, version int) (data []byte, ok bool, err error)
	readHistory(ctx context.Context, key string) ([]VersionInfo, error)
	listVersions(ctx context.Context, key string) ([]int, error)

	// commit persists a new version together with its history entry,
	// metadata and active copy.
	commit(ctx context.Context, c commitSet) error

	// prune removes snapshots and rewrites history and metadata.
	prune(ctx context.Context, p pruneSet) error

	deleteAll(ctx context.Context, key string) error
	keys(ctx context.Context) ([]string, error)
	close() error
}

// lockNamer is implemented by backends where distinct keys can share
// storage. Writers of such keys must exclude each other.
type lockNamer interface {
	lockName(key string) string
}

type commitSet struct {
	key     string
	data    []byte
	info    VersionInfo
	meta    Metadata
	history []VersionInfo
}

type pruneSet struct {
	key string
	// versions lists every snapshot to delete.
	versions []int
	// below is set by cleanup: every version lower than it is deleted.
	below   int
	history []VersionInfo
	meta    Metadata
}

// VersionedStore implements VersionManager on top of a storage backend.
// Use NewFileStore, NewTableStore, NewBoltStore or New to construct one.
type VersionedStore struct {
	kind     Kind
	backend  backend
	locks    *keyLocks
	codec    Codec
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

func newVersionedStore(kind Kind, b backend, codec Codec, logger *slog.Logger, recorder Recorder) *VersionedStore {
	if codec == nil {
		codec = JSONCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	locks := newKeyLocks()
	if n, ok := b.(lockNamer); ok {
		locks.name = n.lockName
	}
	return &VersionedStore{
		kind:     kind,
		backend:  b,
		locks:    locks,
		codec:    codec,
		logger:   logger.With("component", "store", "backend", string(kind)),
		recorder: recorder,
		now:      time.Now,
	}
}

// Kind returns the backend kind.
func (s *VersionedStore) Kind() Kind {
	return s.kind
}

// Close releases the backend.
func (s *VersionedStore) Close() error {
	return s.backend.close()
}

func (s *VersionedStore) observe(op string, start time.Time, err *error) {
	s.recorder.ObserveOperation(string(s.kind), op, *err, time.Since(start))
}

// timestamp returns the current time at millisecond precision, the
// resolution every backend can store.
func (s *VersionedStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// degrade implements the read-side policy: validation and security errors
// propagate, anything else is logged and swallowed.
func (s *VersionedStore) degrade(op, key string, err error) error {
	switch KindOf(err) {
	case KindInvalidArgument, KindSecurityViolation:
		return err
	}
	s.logger.Warn("read failed, degrading to empty result",
		"operation", op,
		"key", key,
		"error", err,
	)
	return nil
}

// InitializeConfig creates version 1 of key.
func (s *VersionedStore) InitializeConfig(ctx context.Context, key string, doc Document, description string) (res InitResult, err error) {
	defer s.observe("initialize", time.Now(), &err)

	if err := validateDocument("initialize", key, doc); err != nil {
		return InitResult{}, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	return s.initializeLocked(ctx, key, doc, description, SystemUser)
}

func (s *VersionedStore) initializeLocked(ctx context.Context, key string, doc Document, description, userID string) (InitResult, error) {
	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return InitResult{}, err
	}
	if meta != nil {
		s.logger.Warn("configuration already initialized",
			"key", key,
			"current_version", meta.CurrentVersion,
		)
		return InitResult{Version: meta.CurrentVersion, AlreadyInitialized: true}, nil
	}

	data, err := encodeDocument(s.codec, "initialize", key, doc)
	if err != nil {
		return InitResult{}, err
	}
	if description == "" {
		description = DefaultInitDescription
	}
	if userID == "" {
		userID = SystemUser
	}

	now := s.timestamp()
	info := VersionInfo{
		Version:     1,
		CreatedAt:   now,
		CreatedBy:   userID,
		Description: description,
		ChangeType:  ChangeInitial,
	}
	c := commitSet{
		key:  key,
		data: data,
		info: info,
		meta: Metadata{
			ConfigKey:      key,
			CurrentVersion: 1,
			InitialVersion: 1,
			TotalVersions:  1,
			CreatedAt:      now,
			LastModified:   now,
			LastModifiedBy: userID,
		},
		history: []VersionInfo{info},
	}
	if err := s.backend.commit(ctx, c); err != nil {
		return InitResult{}, err
	}

	s.recorder.SetCurrentVersion(key, 1)
	s.logger.Info("configuration initialized", "key", key, "version", 1)
	return InitResult{Version: 1}, nil
}

// UpdateConfigVersion stores doc as the next version of key.
func (s *VersionedStore) UpdateConfigVersion(ctx context.Context, key string, doc Document, description, userID string) (version int, err error) {
	defer s.observe("update", time.Now(), &err)

	if err := validateDocument("update", key, doc); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		res, err := s.initializeLocked(ctx, key, doc, description, userID)
		return res.Version, err
	}

	current, err := s.currentLocked(ctx, key, meta)
	if err != nil {
		// An unreadable current version cannot be compared; write a fresh
		// version so the key heals.
		s.logger.Warn("current version unreadable, forcing new version",
			"key", key,
			"version", meta.CurrentVersion,
			"error", err,
		)
	} else if current != nil && Equal(current, doc) {
		s.logger.Debug("configuration unchanged, skipping update",
			"key", key,
			"version", meta.CurrentVersion,
		)
		return meta.CurrentVersion, nil
	}

	data, err := encodeDocument(s.codec, "update", key, doc)
	if err != nil {
		return 0, err
	}
	next, err := s.appendLocked(ctx, key, meta, data, ChangeUpdate, description, userID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("configuration updated",
		"key", key,
		"version", next,
		"user", userID,
	)
	return next, nil
}

// currentLocked loads the document at meta.CurrentVersion, preferring the
// snapshot and falling back to the active copy.
func (s *VersionedStore) currentLocked(ctx context.Context, key string, meta *Metadata) (Document, error) {
	data, ok, err := s.backend.readVersion(ctx, key, meta.CurrentVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		data, ok, err = s.backend.readActive(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
	}
	return decodeDocument(s.codec, "update", key, meta.CurrentVersion, data)
}

// appendLocked commits data as meta.CurrentVersion+1.
func (s *VersionedStore) appendLocked(ctx context.Context, key string, meta *Metadata, data []byte, change ChangeType, description, userID string) (int, error) {
	if userID == "" {
		userID = SystemUser
	}

	history, err := s.backend.readHistory(ctx, key)
	if err != nil {
		return 0, err
	}

	next := meta.CurrentVersion + 1
	now := s.timestamp()
	info := VersionInfo{
		Version:     next,
		CreatedAt:   now,
		CreatedBy:   userID,
		Description: description,
		ChangeType:  change,
	}

	updated := *meta
	updated.CurrentVersion = next
	updated.TotalVersions = meta.TotalVersions + 1
	updated.LastModified = now
	updated.LastModifiedBy = userID

	c := commitSet{
		key:     key,
		data:    data,
		info:    info,
		meta:    updated,
		history: append(history, info),
	}
	if err := s.backend.commit(ctx, c); err != nil {
		return 0, err
	}

	s.recorder.SetCurrentVersion(key, next)
	return next, nil
}

// GetLatestConfig returns the current document of key.
func (s *VersionedStore) GetLatestConfig(ctx context.Context, key string) (doc Document, err error) {
	defer s.observe("get_latest", time.Now(), &err)

	if err := validateKey("get_latest", key); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	data, ok, err := s.backend.readActive(ctx, key)
	if err != nil {
		if err := s.degrade("get_latest", key, err); err != nil {
			return nil, err
		}
	} else if ok {
		doc, err := decodeDocument(s.codec, "get_latest", key, 0, data)
		if err == nil {
			return doc, nil
		}
		s.logger.Warn("active copy corrupt, falling back to versioned snapshot", "key", key, "error", err)
	}

	// Self-healing path: serve the snapshot the metadata points at.
	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return nil, s.degrade("get_latest", key, err)
	}
	if meta == nil {
		return nil, nil
	}
	return s.readVersionDegraded(ctx, "get_latest", key, meta.CurrentVersion)
}

func (s *VersionedStore) readVersionDegraded(ctx context.Context, op, key string, version int) (Document, error) {
	data, ok, err := s.backend.readVersion(ctx, key, version)
	if err != nil {
		return nil, s.degrade(op, key, err)
	}
	if !ok {
		return nil, nil
	}
	doc, err := decodeDocument(s.codec, op, key, version, data)
	if err != nil {
		return nil, s.degrade(op, key, err)
	}
	return doc, nil
}

// GetConfigByVersion returns the snapshot of key at version, or nil.
func (s *VersionedStore) GetConfigByVersion(ctx context.Context, key string, version int) (doc Document, err error) {
	defer s.observe("get_version", time.Now(), &err)

	if err := validateKey("get_version", key); err != nil {
		return nil, err
	}
	if version <= 0 {
		return nil, nil
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	return s.readVersionDegraded(ctx, "get_version", key, version)
}

// RollbackToVersion appends a new version whose content equals target.
func (s *VersionedStore) RollbackToVersion(ctx context.Context, key string, target int, description, userID string) (version int, err error) {
	defer s.observe("rollback", time.Now(), &err)

	if err := validateKey("rollback", key); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, newError(KindNotInitialized, "rollback", key, nil)
	}
	if target <= 0 {
		return 0, versionError(KindVersionNotFound, "rollback", key, target, nil)
	}

	data, ok, err := s.backend.readVersion(ctx, key, target)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, versionError(KindVersionNotFound, "rollback", key, target, nil)
	}
	if _, err := decodeDocument(s.codec, "rollback", key, target, data); err != nil {
		return 0, err
	}

	if description == "" {
		description = fmt.Sprintf("Rollback to version %d", target)
	}
	next, err := s.appendLocked(ctx, key, meta, data, ChangeRollback, description, userID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("configuration rolled back",
		"key", key,
		"target_version", target,
		"version", next,
		"user", userID,
	)
	return next, nil
}

// GetConfigMetadata returns the metadata of key, or nil when the key is
// uninitialized or its metadata cannot be read.
func (s *VersionedStore) GetConfigMetadata(ctx context.Context, key string) (meta *Metadata, err error) {
	defer s.observe("metadata", time.Now(), &err)

	if err := validateKey("metadata", key); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	meta, err = s.backend.readMeta(ctx, key)
	if err != nil {
		return nil, s.degrade("metadata", key, err)
	}
	return meta, nil
}

// GetVersionHistory returns history newest first, truncated to limit when
// limit is positive.
func (s *VersionedStore) GetVersionHistory(ctx context.Context, key string, limit int) (history []VersionInfo, err error) {
	defer s.observe("history", time.Now(), &err)

	if err := validateKey("history", key); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	history, err = s.backend.readHistory(ctx, key)
	if err != nil {
		return []VersionInfo{}, s.degrade("history", key, err)
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Version > history[j].Version
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	if history == nil {
		history = []VersionInfo{}
	}
	return history, nil
}

// IsConfigInitialized reports whether key has readable metadata.
func (s *VersionedStore) IsConfigInitialized(ctx context.Context, key string) (bool, error) {
	meta, err := s.GetConfigMetadata(ctx, key)
	if err != nil {
		return false, err
	}
	return meta != nil, nil
}

// CleanupOldVersions keeps the keepVersions newest snapshots of key and
// deletes the rest, returning how many were deleted.
func (s *VersionedStore) CleanupOldVersions(ctx context.Context, key string, keepVersions int) (deleted int, err error) {
	defer s.observe("cleanup", time.Now(), &err)

	if err := validateKey("cleanup", key); err != nil {
		return 0, err
	}
	if keepVersions <= 0 {
		return 0, newError(KindInvalidArgument, "cleanup", key,
			fmt.Errorf("keepVersions must be positive, got %d", keepVersions))
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, newError(KindNotInitialized, "cleanup", key, nil)
	}

	versions, err := s.backend.listVersions(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keepVersions {
		return 0, nil
	}

	doomed := versions[:len(versions)-keepVersions]
	// Current is the highest stored version, so it is always in the kept
	// tail; guard anyway in case a stray higher snapshot exists.
	doomed = slices.DeleteFunc(slices.Clone(doomed), func(v int) bool {
		return v == meta.CurrentVersion
	})
	if len(doomed) == 0 {
		return 0, nil
	}

	history, err := s.backend.readHistory(ctx, key)
	if err != nil {
		return 0, err
	}
	history = slices.DeleteFunc(history, func(h VersionInfo) bool {
		return slices.Contains(doomed, h.Version)
	})

	updated := *meta
	updated.TotalVersions = len(versions) - len(doomed)

	p := pruneSet{
		key:      key,
		versions: doomed,
		below:    versions[len(versions)-keepVersions],
		history:  history,
		meta:     updated,
	}
	if err := s.backend.prune(ctx, p); err != nil {
		return 0, err
	}

	s.logger.Info("old versions cleaned up",
		"key", key,
		"deleted", len(doomed),
		"kept", updated.TotalVersions,
	)
	return len(doomed), nil
}

// GetConfigVersions lists the stored versions of key in ascending order.
func (s *VersionedStore) GetConfigVersions(ctx context.Context, key string) (versions []int, err error) {
	defer s.observe("list_versions", time.Now(), &err)

	if err := validateKey("list_versions", key); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	versions, err = s.backend.listVersions(ctx, key)
	if err != nil {
		return []int{}, s.degrade("list_versions", key, err)
	}
	sort.Ints(versions)
	return versions, nil
}

// VersionExists reports whether a snapshot is stored for version.
func (s *VersionedStore) VersionExists(ctx context.Context, key string, version int) (bool, error) {
	if err := validateKey("version_exists", key); err != nil {
		return false, err
	}
	if version <= 0 {
		return false, nil
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	_, ok, err := s.backend.readVersion(ctx, key, version)
	if err != nil {
		return false, s.degrade("version_exists", key, err)
	}
	return ok, nil
}

// DeleteConfigVersion removes one non-current snapshot of key.
func (s *VersionedStore) DeleteConfigVersion(ctx context.Context, key string, version int) (err error) {
	defer s.observe("delete_version", time.Now(), &err)

	if err := validateKey("delete_version", key); err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return err
	}
	if meta == nil {
		return newError(KindNotInitialized, "delete_version", key, nil)
	}
	if version == meta.CurrentVersion {
		return versionError(KindInvalidArgument, "delete_version", key, version,
			errors.New("cannot delete the current version"))
	}

	_, ok, err := s.backend.readVersion(ctx, key, version)
	if err != nil {
		return err
	}
	if !ok {
		return versionError(KindVersionNotFound, "delete_version", key, version, nil)
	}

	history, err := s.backend.readHistory(ctx, key)
	if err != nil {
		return err
	}
	history = slices.DeleteFunc(history, func(h VersionInfo) bool {
		return h.Version == version
	})

	updated := *meta
	if updated.TotalVersions > 0 {
		updated.TotalVersions--
	}

	if err := s.backend.prune(ctx, pruneSet{
		key:      key,
		versions: []int{version},
		history:  history,
		meta:     updated,
	}); err != nil {
		return err
	}

	s.logger.Info("configuration version deleted", "key", key, "version", version)
	return nil
}

// SaveConfig stores doc as a new version attributed to the system user.
func (s *VersionedStore) SaveConfig(ctx context.Context, key string, doc Document) error {
	_, err := s.UpdateConfigVersion(ctx, key, doc, legacyDescription, SystemUser)
	return err
}

// UpdateConfig replaces the document of key through the versioned path.
func (s *VersionedStore) UpdateConfig(ctx context.Context, key string, doc Document) error {
	_, err := s.UpdateConfigVersion(ctx, key, doc, legacyDescription, SystemUser)
	return err
}

// GetConfig returns the current document of key.
func (s *VersionedStore) GetConfig(ctx context.Context, key string) (Document, error) {
	return s.GetLatestConfig(ctx, key)
}

// DeleteConfig removes every snapshot, the metadata and the history of key.
func (s *VersionedStore) DeleteConfig(ctx context.Context, key string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := validateKey("delete", key); err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.backend.deleteAll(ctx, key); err != nil {
		return err
	}

	s.recorder.SetCurrentVersion(key, 0)
	s.logger.Info("configuration deleted", "key", key)
	return nil
}

// Exists reports whether key holds a readable document or metadata.
func (s *VersionedStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey("exists", key); err != nil {
		return false, err
	}

	unlock := s.locks.RLock(key)
	defer unlock()

	_, ok, err := s.backend.readActive(ctx, key)
	if err != nil {
		if err := s.degrade("exists", key, err); err != nil {
			return false, err
		}
	}
	if ok {
		return true, nil
	}

	meta, err := s.backend.readMeta(ctx, key)
	if err != nil {
		return false, s.degrade("exists", key, err)
	}
	return meta != nil, nil
}

// GetAllKeys returns every initialized key in ascending order.
func (s *VersionedStore) GetAllKeys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

var _ VersionManager = (*VersionedStore)(nil)
