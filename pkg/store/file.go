package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	versionsDirName = "versions"
	metadataSuffix  = ".metadata.json"
	historySuffix   = ".history.json"
	jsonSuffix      = ".json"
)

// FileOptions configures the file backend.
type FileOptions struct {
	// Root is the storage directory. It is created if missing.
	Root string

	Logger   *slog.Logger
	Codec    Codec
	Recorder Recorder
}

// NewFileStore opens a file-backed VersionManager rooted at opts.Root.
//
// Layout:
//
//	{key}.json                 active copy
//	{key}.metadata.json        metadata
//	{key}.history.json         history
//	versions/{key}.v{N}.json   immutable snapshots
func NewFileStore(opts FileOptions) (*VersionedStore, error) {
	if opts.Root == "" {
		return nil, newError(KindInvalidArgument, "open", "", fmt.Errorf("file store root is required"))
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, newError(KindIOFailure, "open", "", fmt.Errorf("failed to resolve root %q: %w", opts.Root, err))
	}
	versions := filepath.Join(root, versionsDirName)
	if err := os.MkdirAll(versions, dirPerm); err != nil {
		return nil, newError(KindIOFailure, "open", "", fmt.Errorf("failed to create storage directory: %w", err))
	}

	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &fileBackend{
		root:     root,
		versions: versions,
		codec:    codec,
		logger:   logger.With("component", "store.file"),
	}
	return newVersionedStore(KindFile, b, codec, logger, opts.Recorder), nil
}

type fileBackend struct {
	root     string
	versions string
	codec    Codec
	logger   *slog.Logger
}

type filePaths struct {
	stem     string
	active   string
	meta     string
	history  string
	versions string
}

func (b *fileBackend) paths(key string) (filePaths, error) {
	stem, err := SanitizeKey(key)
	if err != nil {
		return filePaths{}, err
	}

	p := filePaths{stem: stem, versions: b.versions}
	for _, target := range []struct {
		dst  *string
		name string
	}{
		{&p.active, stem + jsonSuffix},
		{&p.meta, stem + metadataSuffix},
		{&p.history, stem + historySuffix},
	} {
		path, err := Within(b.root, target.name)
		if err != nil {
			return filePaths{}, err
		}
		*target.dst = path
	}
	return p, nil
}

// lockName locks keys by file stem, so "a/b" and "a_b" share a lock. Keys
// without a valid stem fail in paths and keep their own name.
func (b *fileBackend) lockName(key string) string {
	stem, err := SanitizeKey(key)
	if err != nil {
		return key
	}
	return stem
}

func (b *fileBackend) versionPath(p filePaths, version int) (string, error) {
	return Within(b.versions, fmt.Sprintf("%s.v%d%s", p.stem, version, jsonSuffix))
}

func ioError(op, key string, err error) error {
	return newError(KindIOFailure, op, key, err)
}

func (b *fileBackend) readMeta(_ context.Context, key string) (*Metadata, error) {
	p, err := b.paths(key)
	if err != nil {
		return nil, err
	}
	data, ok, err := readFile(p.meta)
	if err != nil {
		return nil, ioError("read_metadata", key, err)
	}
	if !ok {
		return nil, nil
	}
	var meta Metadata
	if err := b.codec.Unmarshal(data, &meta); err != nil {
		return nil, newError(KindCorruptData, "read_metadata", key, err)
	}
	return &meta, nil
}

func (b *fileBackend) readActive(_ context.Context, key string) ([]byte, bool, error) {
	p, err := b.paths(key)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := readFile(p.active)
	if err != nil {
		return nil, false, ioError("read_active", key, err)
	}
	return data, ok, nil
}

func (b *fileBackend) readVersion(_ context.Context, key string, version int) ([]byte, bool, error) {
	p, err := b.paths(key)
	if err != nil {
		return nil, false, err
	}
	path, err := b.versionPath(p, version)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := readFile(path)
	if err != nil {
		return nil, false, versionError(KindIOFailure, "read_version", key, version, err)
	}
	return data, ok, nil
}

func (b *fileBackend) readHistory(_ context.Context, key string) ([]VersionInfo, error) {
	p, err := b.paths(key)
	if err != nil {
		return nil, err
	}
	data, ok, err := readFile(p.history)
	if err != nil {
		return nil, ioError("read_history", key, err)
	}
	if !ok {
		return nil, nil
	}
	var history []VersionInfo
	if err := b.codec.Unmarshal(data, &history); err != nil {
		return nil, newError(KindCorruptData, "read_history", key, err)
	}
	return history, nil
}

func (b *fileBackend) listVersions(_ context.Context, key string) ([]int, error) {
	p, err := b.paths(key)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.versions)
	if err != nil {
		if os.IsNotExist(err) {
			return []int{}, nil
		}
		return nil, ioError("list_versions", key, err)
	}

	prefix := p.stem + ".v"
	versions := []int{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, jsonSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), jsonSuffix))
		if err != nil || n <= 0 {
			b.logger.Warn("ignoring malformed version file", "key", key, "file", name)
			continue
		}
		versions = append(versions, n)
	}
	return versions, nil
}

func (b *fileBackend) encode(op, key string, v any) ([]byte, error) {
	data, err := b.codec.Marshal(v)
	if err != nil {
		return nil, newError(KindIOFailure, op, key, fmt.Errorf("failed to encode: %w", err))
	}
	return data, nil
}

// commit writes snapshot, history, metadata and active copy in that order.
// A crash part way leaves at worst an orphan snapshot above
// CurrentVersion, which the next commit overwrites.
func (b *fileBackend) commit(ctx context.Context, c commitSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.paths(c.key)
	if err != nil {
		return err
	}
	vpath, err := b.versionPath(p, c.info.Version)
	if err != nil {
		return err
	}

	history, err := b.encode("commit", c.key, c.history)
	if err != nil {
		return err
	}
	meta, err := b.encode("commit", c.key, c.meta)
	if err != nil {
		return err
	}

	for _, w := range []struct {
		path string
		data []byte
	}{
		{vpath, c.data},
		{p.history, history},
		{p.meta, meta},
		{p.active, c.data},
	} {
		if err := WriteFileAtomic(w.path, w.data); err != nil {
			return versionError(KindIOFailure, "commit", c.key, c.info.Version, err)
		}
	}
	return nil
}

func (b *fileBackend) prune(ctx context.Context, pr pruneSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.paths(pr.key)
	if err != nil {
		return err
	}

	for _, v := range pr.versions {
		path, err := b.versionPath(p, v)
		if err != nil {
			return err
		}
		if err := removeIfExists(path); err != nil {
			return versionError(KindIOFailure, "prune", pr.key, v, err)
		}
	}

	history, err := b.encode("prune", pr.key, pr.history)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(p.history, history); err != nil {
		return ioError("prune", pr.key, err)
	}
	meta, err := b.encode("prune", pr.key, pr.meta)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(p.meta, meta); err != nil {
		return ioError("prune", pr.key, err)
	}
	return nil
}

func (b *fileBackend) deleteAll(ctx context.Context, key string) error {
	p, err := b.paths(key)
	if err != nil {
		return err
	}
	versions, err := b.listVersions(ctx, key)
	if err != nil {
		return err
	}
	for _, v := range versions {
		path, err := b.versionPath(p, v)
		if err != nil {
			return err
		}
		if err := removeIfExists(path); err != nil {
			return versionError(KindIOFailure, "delete", key, v, err)
		}
	}
	// Metadata goes last so a partial delete still reads as initialized
	// and can be retried.
	for _, path := range []string{p.active, p.history, p.meta} {
		if err := removeIfExists(path); err != nil {
			return ioError("delete", key, err)
		}
	}
	return nil
}

func (b *fileBackend) keys(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(b.root, "*"+metadataSuffix))
	if err != nil {
		return nil, ioError("keys", "", err)
	}

	keys := make([]string, 0, len(matches))
	for _, path := range matches {
		stem := strings.TrimSuffix(filepath.Base(path), metadataSuffix)
		data, ok, err := readFile(path)
		if err != nil || !ok {
			continue
		}
		var meta Metadata
		if err := b.codec.Unmarshal(data, &meta); err != nil || meta.ConfigKey == "" {
			b.logger.Warn("metadata unreadable, using file name as key", "file", path)
			keys = append(keys, stem)
			continue
		}
		keys = append(keys, meta.ConfigKey)
	}
	return keys, nil
}

func (b *fileBackend) close() error {
	return nil
}
