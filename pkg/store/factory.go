package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Kind identifies a storage backend.
type Kind string

const (
	KindFile   Kind = "file"
	KindMemory Kind = "memory"
	KindTable  Kind = "table"
	KindBolt   Kind = "bolt"
)

// Kinds lists every supported backend.
var Kinds = []Kind{KindFile, KindMemory, KindTable, KindBolt}

// tableAliases are accepted as names for the table backend.
var tableAliases = map[string]bool{
	"h2":       true,
	"sqlite":   true,
	"database": true,
}

// ParseKind maps a configured type name to a Kind. Matching is
// case-insensitive; unknown names fail with KindUnsupportedStoreType.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if name == string(k) {
			return k, nil
		}
	}
	if tableAliases[name] {
		return KindTable, nil
	}
	return "", newError(KindUnsupportedStoreType, "parse_kind", "",
		fmt.Errorf("unsupported store type %q", s))
}

// Versioned reports whether the backend implements VersionManager.
func (k Kind) Versioned() bool {
	return k != KindMemory
}

// Options carries the parameters every backend may need. Only the fields
// relevant to the selected kind are used.
type Options struct {
	// Path is the file backend root, and the directory for the bolt file
	// when BoltPath is empty.
	Path string

	// BoltPath is the bolt database file.
	BoltPath string

	// DB is the injected handle for the table backend.
	DB *sql.DB

	// SkipMigrations is passed to the table backend.
	SkipMigrations bool

	Logger   *slog.Logger
	Codec    Codec
	Recorder Recorder
}

// New builds the backend for kind. The table backend needs opts.DB and
// fails with KindMissingRepository without it; there is no fallback.
func New(kind Kind, opts Options) (Manager, error) {
	switch kind {
	case KindFile:
		return versioned(NewFileStore(FileOptions{
			Root:     opts.Path,
			Logger:   opts.Logger,
			Codec:    opts.Codec,
			Recorder: opts.Recorder,
		}))
	case KindMemory:
		return NewMemoryStore(), nil
	case KindTable:
		return versioned(NewTableStore(TableOptions{
			DB:             opts.DB,
			SkipMigrations: opts.SkipMigrations,
			Logger:         opts.Logger,
			Codec:          opts.Codec,
			Recorder:       opts.Recorder,
		}))
	case KindBolt:
		path := opts.BoltPath
		if path == "" {
			if opts.Path == "" {
				return nil, newError(KindInvalidArgument, "open", "", fmt.Errorf("bolt store requires a path"))
			}
			path = filepath.Join(opts.Path, DefaultBoltFile)
		}
		return versioned(NewBoltStore(BoltOptions{
			Path:     path,
			Logger:   opts.Logger,
			Codec:    opts.Codec,
			Recorder: opts.Recorder,
		}))
	default:
		return nil, newError(KindUnsupportedStoreType, "open", "",
			fmt.Errorf("unsupported store type %q", string(kind)))
	}
}

// versioned keeps a failed constructor from yielding a non-nil Manager
// that wraps a nil pointer.
func versioned(vs *VersionedStore, err error) (Manager, error) {
	if err != nil {
		return nil, err
	}
	return vs, nil
}

// NewVersioned is New restricted to versioned backends.
func NewVersioned(kind Kind, opts Options) (VersionManager, error) {
	if !kind.Versioned() {
		return nil, newError(KindUnsupportedStoreType, "open", "",
			fmt.Errorf("store type %q does not support versioning", string(kind)))
	}
	m, err := New(kind, opts)
	if err != nil {
		return nil, err
	}
	vm, _ := AsVersionManager(m)
	return vm, nil
}

// AsVersionManager returns m as a VersionManager when the backend supports
// versioning.
func AsVersionManager(m Manager) (VersionManager, bool) {
	vm, ok := m.(VersionManager)
	return vm, ok
}
