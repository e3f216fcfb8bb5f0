package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var keyReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	"..", "_",
	"\x00", "_",
)

// reservedStemSuffixes end the stems of the per-key bookkeeping files. A key
// whose stem ends in one would have its active copy land on another key's
// metadata or history file.
var reservedStemSuffixes = []string{
	strings.TrimSuffix(metadataSuffix, jsonSuffix),
	strings.TrimSuffix(historySuffix, jsonSuffix),
}

// SanitizeKey maps a configuration key to a file name stem that cannot
// contain path separators or parent references. Keys ending in ".metadata"
// or ".history" are rejected.
func SanitizeKey(key string) (string, error) {
	s := keyReplacer.Replace(key)
	if s == "" || s == "." {
		return "", newError(KindInvalidArgument, "sanitize", key, errors.New("key has no usable characters"))
	}
	lower := strings.ToLower(s)
	for _, suffix := range reservedStemSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return "", newError(KindInvalidArgument, "sanitize", key,
				fmt.Errorf("key may not end in %q", suffix))
		}
	}
	return s, nil
}

// Within joins name onto root and verifies the result stays inside root.
func Within(root, name string) (string, error) {
	path := filepath.Join(root, name)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", newError(KindSecurityViolation, "resolve", name, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", newError(KindSecurityViolation, "resolve", name,
			fmt.Errorf("path %q escapes storage root %q", path, root))
	}
	return path, nil
}

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it into place. The parent directory is synced afterwards so the
// rename survives a crash.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory for sync: %w", err)
	}
	defer d.Close()

	// Some filesystems reject fsync on directories.
	if err := d.Sync(); err != nil && !errors.Is(err, fs.ErrInvalid) {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

// readFile returns the contents of path, with ok=false when it does not exist.
func readFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
