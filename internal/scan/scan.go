package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imgcluster/internal/logger"
)

// ErrNotDirectory is returned when the scan root is missing or not a directory
var ErrNotDirectory = errors.New("not a directory")

// DefaultExtensions are the file extensions scanned when none are configured
var DefaultExtensions = []string{".png"}

// Options controls image discovery
type Options struct {
	Extensions []string // Case-insensitive extensions including the dot
	SkipDirs   []string // Directories (and their subtrees) to ignore
}

// Discover walks root recursively and returns matching image paths in
// lexical order. Unreadable subdirectories are logged and skipped.
func Discover(ctx context.Context, root string, opts Options) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	extensions := normalizeExtensions(opts.Extensions)
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, dir := range opts.SkipDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = true
		}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn("Skipping unreadable path", "path", path, "error", walkErr.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && len(skip) > 0 {
				if abs, err := filepath.Abs(path); err == nil && skip[abs] {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if d.Type().IsRegular() && extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// normalizeExtensions lower-cases extensions and adds a leading dot when missing
func normalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}
