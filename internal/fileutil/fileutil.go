// Package fileutil holds the filesystem helpers shared by the importer and
// the media store: containment checks for paths taken from untrusted
// archives, atomic writes, and owner-only directory creation.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBase is returned when a path would resolve outside its base
// directory.
var ErrOutsideBase = errors.New("path escapes base directory")

// SafeJoin joins rel onto base and rejects the result unless it stays
// inside base. Absolute paths, volume names and ".." escapes all fail.
func SafeJoin(base, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideBase)
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("%w: %q is absolute", ErrOutsideBase, rel)
	}
	joined := filepath.Join(base, rel)
	if !IsPathInBase(base, joined) {
		return "", fmt.Errorf("%w: %q", ErrOutsideBase, rel)
	}
	return joined, nil
}

// IsPathInBase reports whether path is base itself or lies beneath it.
// Both are compared lexically after cleaning; symlinks are not resolved.
func IsPathInBase(base, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// SecureMkdirAll creates path and any missing parents, then narrows the
// final directory to perm regardless of umask.
func SecureMkdirAll(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// SecureWriteFile writes data to path with exactly perm.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// WriteFileAtomic writes data to a temp file beside path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
