package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// ZipBytes builds an in-memory zip from name -> content entries. Entries
// are written in sorted name order; a name ending in "/" becomes a
// directory entry.
func ZipBytes(t testing.TB, entries map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(entries[name])); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// CreateTempZip writes ZipBytes(entries) to dir/name (dir defaults to a
// fresh temp dir) and returns the path.
func CreateTempZip(t testing.TB, dir, name string, entries map[string]string) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, ZipBytes(t, entries), 0644); err != nil {
		t.Fatalf("write zip %s: %v", p, err)
	}
	return p
}

// CreateExportFolder lays out an unzipped export under dir/name: each entry
// becomes a file relative to the folder. Returns the folder path.
func CreateExportFolder(t testing.TB, dir, name string, entries map[string]string) string {
	t.Helper()
	folder := filepath.Join(dir, name)
	for rel, content := range entries {
		p := filepath.Join(folder, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", folder, err)
	}
	return folder
}
