package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/slscan/internal/capture"
)

// discoverCaptureDirs finds capture directories below the given roots.
// A root that is itself a capture is taken as is; otherwise its children
// are searched, all the way down when recursive is set. Include and
// exclude globs match the directory base name.
func discoverCaptureDirs(args []string, layout capture.Layout, recursive bool,
	includePatterns, excludePatterns []string,
) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if !seen[dir] && shouldIncludeDir(dir, includePatterns, excludePatterns) {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", arg)
		}
		if capture.IsCaptureDir(arg, layout) {
			add(arg)
			continue
		}

		found, err := discoverInDirectory(arg, layout, recursive)
		if err != nil {
			return nil, err
		}
		for _, d := range found {
			add(d)
		}
	}
	return dirs, nil
}

// discoverInDirectory walks root and returns every capture directory below
// it in lexical order. Without recursive only direct children are checked.
func discoverInDirectory(root string, layout capture.Layout, recursive bool) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if capture.IsCaptureDir(path, layout) {
			dirs = append(dirs, path)
			// Captures do not nest.
			return filepath.SkipDir
		}
		if !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	return dirs, err
}

// shouldIncludeDir applies the include/exclude globs to a directory.
func shouldIncludeDir(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern checks the base name of path against patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
