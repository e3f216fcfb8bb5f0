package merge

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"

	"mercator-hq/modelrouter/pkg/store"
)

// legacyPattern matches {prefix}@{N}.json and captures N.
func legacyPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `@(\d+)\.json$`)
}

// Scan lists the legacy snapshots in dir, ordered by version ascending.
// A missing directory yields no files. Names whose number does not fit an
// int are skipped with a warning.
func Scan(dir, prefix string, logger *slog.Logger) ([]SourceFile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("legacy config directory does not exist", "dir", dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", dir, err)
	}

	re := legacyPattern(prefix)
	var files []SourceFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			logger.Warn("skipping legacy file with unparseable version", "file", e.Name(), "error", err)
			continue
		}
		path, err := store.Within(dir, e.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, SourceFile{Version: version, Path: path})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}
