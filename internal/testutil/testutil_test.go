package testutil

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewTestStore(t *testing.T) {
	st := NewTestStore(t)

	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ChatCount != 0 || stats.MessageCount != 0 {
		t.Errorf("fresh store has %d chats, %d messages", stats.ChatCount, stats.MessageCount)
	}
}

func TestWriteFileSubdir(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "WhatsApp Chat - Bob/media/IMG-0001.jpg", []byte("jpg"))
	if path != filepath.Join(dir, "WhatsApp Chat - Bob", "media", "IMG-0001.jpg") {
		t.Errorf("path = %s", path)
	}
	AssertFileContent(t, path, "jpg")
	MustNotExist(t, filepath.Join(dir, "does-not-exist.txt"))
}

func TestZipBytes(t *testing.T) {
	data := ZipBytes(t, map[string]string{
		"b.txt":   "bee",
		"a/":      "",
		"a/c.jpg": "sea",
	})
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	MustNoErr(t, err, "open zip")

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	AssertStrings(t, names, "a/", "a/c.jpg", "b.txt")
	if !zr.File[0].FileInfo().IsDir() {
		t.Error("a/ should be a directory entry")
	}
}

func TestCreateExportFolder(t *testing.T) {
	folder := CreateExportFolder(t, t.TempDir(), "WhatsApp Chat - Bob", map[string]string{
		"_chat.txt":       "hi",
		"media/IMG-1.jpg": "jpg",
	})
	AssertFileContent(t, filepath.Join(folder, "_chat.txt"), "hi")
	AssertFileContent(t, filepath.Join(folder, "media", "IMG-1.jpg"), "jpg")
}

func TestTranscriptBuilder(t *testing.T) {
	got := NewTranscript().Say("Alice", "hi").Attach("Bob", "IMG-1.jpg").Raw("continued").String()
	lines := strings.Split(got, "\n")
	AssertStrings(t, lines,
		"[1/1/24, 1:00:00 PM] Alice: hi",
		"[1/1/24, 1:01:00 PM] Bob: <attached: IMG-1.jpg>",
		"continued",
	)
}
