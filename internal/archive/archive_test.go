package archive

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/wesm/wahistory/internal/testutil"
)

func openTest(t *testing.T, entries map[string]string, limits Limits) *Archive {
	t.Helper()
	a, err := Open(testutil.ZipBytes(t, entries), limits)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return a
}

func TestFindOrder(t *testing.T) {
	a := openTest(t, map[string]string{
		"photo.jpg":                      "root",
		"WhatsApp Chat - Bob/photo.jpg":  "nested",
		"WhatsApp Chat - Bob/xphoto.jpg": "suffix",
		"deep/dir/only.opus":             "deep",
		"deep/dir/prefixonly.pdf":        "any",
		"__MACOSX/deep/._note.txt":       "fork",
		"deep/":                          "",
	}, DefaultLimits())

	tests := []struct {
		name string
		want string
	}{
		{"photo.jpg", "root"},
		{"only.opus", "deep"},
		{"onlyonly.opus", ""},
		{"only.pdf", "any"},
		{"note.txt", ""},
		{"deep", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := a.Find(tt.name)
			if tt.want == "" {
				if f != nil {
					t.Errorf("Find(%q) = %q, want nil", tt.name, f.Name)
				}
				return
			}
			if f == nil {
				t.Fatalf("Find(%q) = nil", tt.name)
			}
			data, err := a.ReadEntry(f)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("Find(%q) read %q, want %q", tt.name, data, tt.want)
			}
		})
	}
}

func TestFindPrefersSlashSuffixOverAnySuffix(t *testing.T) {
	a := openTest(t, map[string]string{
		"a/xdoc.pdf": "any",
		"b/doc.pdf":  "slash",
	}, DefaultLimits())
	data, err := a.ReadFile("doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "slash" {
		t.Errorf("got %q, want slash", data)
	}
}

func TestFindBackslashNames(t *testing.T) {
	a := openTest(t, map[string]string{`export\_chat.txt`: "[1/1/24, 1:00 PM] A: hi"}, DefaultLimits())
	text, err := a.Transcript()
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if !strings.Contains(text, "A: hi") {
		t.Errorf("Transcript = %q", text)
	}
}

func TestTranscript(t *testing.T) {
	a := openTest(t, map[string]string{
		TranscriptEntry: "\xef\xbb\xbf[1/1/24, 1:00 PM] Alice: hi",
		"photo.jpg":     "jpeg",
	}, DefaultLimits())
	text, err := a.Transcript()
	if err != nil {
		t.Fatal(err)
	}
	if text != "[1/1/24, 1:00 PM] Alice: hi" {
		t.Errorf("Transcript = %q", text)
	}

	empty := openTest(t, map[string]string{"photo.jpg": "jpeg"}, DefaultLimits())
	if _, err := empty.Transcript(); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := Open([]byte("not a zip"), DefaultLimits()); err == nil {
		t.Error("expected error for non-zip data")
	}
}

func TestOpenFile(t *testing.T) {
	p := testutil.CreateTempZip(t, "", "WhatsApp Chat - Bob.zip", map[string]string{TranscriptEntry: "x"})
	a, err := OpenFile(p, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	data, err := a.ReadFile(TranscriptEntry)
	if err != nil || string(data) != "x" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}
}

func TestEntryLimit(t *testing.T) {
	a := openTest(t, map[string]string{"big.bin": strings.Repeat("x", 100)}, Limits{MaxEntryBytes: 10})
	if _, err := a.ReadFile("big.bin"); !errors.Is(err, ErrExtractLimitExceeded) {
		t.Errorf("err = %v, want ErrExtractLimitExceeded", err)
	}
}

func TestTotalLimit(t *testing.T) {
	a := openTest(t, map[string]string{
		"a.bin": strings.Repeat("a", 60),
		"b.bin": strings.Repeat("b", 60),
	}, Limits{MaxTotalBytes: 100})

	if _, err := a.ReadFile("a.bin"); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := a.ReadFile("b.bin"); !errors.Is(err, ErrExtractLimitExceeded) {
		t.Errorf("second read err = %v, want ErrExtractLimitExceeded", err)
	}
}

func TestCopyWithLimit(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		max     int64
		wantErr bool
	}{
		{"unlimited", "hello", 0, false},
		{"under", "hello", 10, false},
		{"exact", "hello", 5, false},
		{"over", "hello!", 5, true},
		{"empty", "", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst bytes.Buffer
			n, err := CopyWithLimit(&dst, strings.NewReader(tt.data), tt.max)
			if tt.wantErr {
				if !errors.Is(err, ErrExtractLimitExceeded) {
					t.Errorf("err = %v, want ErrExtractLimitExceeded", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if n != int64(len(tt.data)) || dst.String() != tt.data {
				t.Errorf("copied %d %q, want %q", n, dst.String(), tt.data)
			}
		})
	}
}

func TestEntryName(t *testing.T) {
	tests := map[string]string{
		"a/b.txt":    "a/b.txt",
		`a\b.txt`:    "a/b.txt",
		"./a.txt":    "a.txt",
		"/abs/a.txt": "abs/a.txt",
		".":          "",
		"":           "",
	}
	for in, want := range tests {
		if got := entryName(in); got != want {
			t.Errorf("entryName(%q) = %q, want %q", in, got, want)
		}
	}
}
