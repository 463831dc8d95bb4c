package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIncludes are used when no include globs are configured.
var DefaultIncludes = []string{"**/*.yaml", "**/*.yml", "**/*.json", "**/*.toml"}

// Discover lists data files under root matching include and none of
// exclude. Paths are data-root relative, slash separated and sorted. Files
// in skip (absolute paths) are never returned.
func Discover(root string, include, exclude, skip []string) ([]string, error) {
	if len(include) == 0 {
		include = DefaultIncludes
	}
	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		if abs, err := filepath.Abs(s); err == nil {
			skipSet[abs] = struct{}{}
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	if err := ensureDir(absRoot); err != nil {
		return nil, fmt.Errorf("data root: %w", err)
	}

	seen := make(map[string]struct{})
	for _, pattern := range include {
		matches, err := doublestar.Glob(os.DirFS(absRoot), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if excluded(m, exclude) {
				continue
			}
			if _, skipped := skipSet[filepath.Join(absRoot, filepath.FromSlash(m))]; skipped {
				continue
			}
			seen[m] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func excluded(p string, exclude []string) bool {
	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// ensureDir reports a missing or non-directory data root.
func ensureDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "stat", Path: root, Err: fmt.Errorf("not a directory")}
	}
	return nil
}
