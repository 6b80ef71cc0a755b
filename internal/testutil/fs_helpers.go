package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/wahistory/internal/fileutil"
)

// WriteFile writes content to dir/name, creating parent directories, and
// returns the full path. name must stay inside dir.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path, err := fileutil.SafeJoin(dir, name)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

// AssertFileContent fails the test unless path holds exactly want.
func AssertFileContent(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(got) != want {
		t.Errorf("%s = %q, want %q", filepath.Base(path), got, want)
	}
}

// MustNotExist fails the test if path exists or cannot be checked.
func MustNotExist(t *testing.T, path string) {
	t.Helper()
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		t.Fatalf("expected %s to not exist", path)
	case !errors.Is(err, fs.ErrNotExist):
		t.Fatalf("check %s: %v", path, err)
	}
}
