package parsers

import (
	"os"
	"path/filepath"
	"sort"

	"golang-rent-normalizer/pkg/errors"
)

// DefaultInputPattern matches the regional rent exports
const DefaultInputPattern = "montants-*.csv"

// Discover lists the regular files in dir whose names match pattern,
// sorted by name.
func Discover(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultInputPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pattern", pattern, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fileError(dir, err)
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, dir, nil)
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pattern", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, path := range matches {
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
