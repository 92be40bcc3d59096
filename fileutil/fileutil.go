// Package fileutil has small filesystem helpers: safe names for renamed
// output files and age-based sweeps of the upload directory.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GlobEscape neutralises glob metacharacters in a literal path prefix.
func GlobEscape(path string) string {
	var r strings.Builder
	for _, c := range path {
		switch c {
		case '*', '?', '[':
			r.WriteRune('[')
			r.WriteRune(c)
			r.WriteRune(']')
		default:
			r.WriteRune(c)
		}
	}
	return r.String()
}

// GlobPrefix globs for prefix+pattern with the prefix taken literally.
func GlobPrefix(prefix, pattern string) ([]string, error) {
	return filepath.Glob(GlobEscape(prefix) + pattern)
}

var safePathReplacer = strings.NewReplacer(
	"\x00", "",
	string(filepath.Separator), " ",
	":", "", "*", "", "?", "", `"`, "", "<", "", ">", "", "|", "",
)

// SafePath makes a string usable as a single path element.
func SafePath(path string) string {
	path = safePathReplacer.Replace(path)
	path = strings.Join(strings.Fields(path), " ")
	return path
}

// SweepOlder removes regular files in dir whose modification time is
// before the cutoff. Subdirectories are left alone. Returns the number of
// files removed; individual failures are collected, not fatal.
func SweepOlder(dir string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}

	var removed int
	var sweepErrs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			sweepErrs = append(sweepErrs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(sweepErrs...)
}
