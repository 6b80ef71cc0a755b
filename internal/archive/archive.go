// Package archive reads WhatsApp export zips in memory. Entry reads are
// bounded so a hostile archive cannot exhaust memory.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/wesm/wahistory/internal/textutil"
)

// TranscriptEntry is the name WhatsApp gives the transcript inside an
// export archive.
const TranscriptEntry = "_chat.txt"

const (
	DefaultMaxEntryBytes int64 = 512 << 20
	DefaultMaxTotalBytes int64 = 4 << 30
)

var (
	ErrExtractLimitExceeded = errors.New("zip extraction limit exceeded")
	ErrEntryNotFound        = errors.New("zip entry not found")
)

// Limits bounds how much may be decompressed. Zero means unlimited.
type Limits struct {
	MaxEntryBytes int64
	MaxTotalBytes int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxEntryBytes: DefaultMaxEntryBytes, MaxTotalBytes: DefaultMaxTotalBytes}
}

// Archive is an opened export zip. It is safe for concurrent reads.
type Archive struct {
	zr     *zip.Reader
	closer io.Closer
	limits Limits

	mu    sync.Mutex
	total int64
}

// Open reads a zip held in memory.
func Open(data []byte, limits Limits) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// Entries are only ever read into memory, so names that would be
	// unsafe to extract are fine here.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return &Archive{zr: zr, limits: limits}, nil
}

// OpenFile opens a zip on disk. The caller must Close it.
func OpenFile(path string, limits Limits) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return &Archive{zr: &rc.Reader, closer: rc, limits: limits}, nil
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Find locates the entry for name: an exact match first, then an entry
// whose path ends in "/name", then any entry whose path ends in name.
// Directories and macOS resource-fork entries are never returned.
func (a *Archive) Find(name string) *zip.File {
	want := entryName(name)
	if want == "" {
		return nil
	}

	var files []*zip.File
	for _, f := range a.zr.File {
		n := entryName(f.Name)
		if f.FileInfo().IsDir() || n == "" || strings.HasPrefix(n, "__MACOSX/") {
			continue
		}
		if n == want {
			return f
		}
		files = append(files, f)
	}
	for _, f := range files {
		if strings.HasSuffix(entryName(f.Name), "/"+want) {
			return f
		}
	}
	for _, f := range files {
		if strings.HasSuffix(entryName(f.Name), want) {
			return f
		}
	}
	return nil
}

// ReadFile finds name and reads it.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f := a.Find(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return a.ReadEntry(f)
}

// ReadEntry decompresses f, enforcing the per-entry limit and the budget
// shared by every read from this archive.
func (a *Archive) ReadEntry(f *zip.File) ([]byte, error) {
	max := a.limits.MaxEntryBytes
	if max > 0 && f.UncompressedSize64 > uint64(max) {
		return nil, fmt.Errorf("%w: entry %q is %s, limit %s", ErrExtractLimitExceeded,
			f.Name, humanize.IBytes(f.UncompressedSize64), humanize.IBytes(uint64(max)))
	}
	if a.limits.MaxTotalBytes > 0 {
		a.mu.Lock()
		remaining := a.limits.MaxTotalBytes - a.total
		a.mu.Unlock()
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: archive total of %s used", ErrExtractLimitExceeded, humanize.IBytes(uint64(a.limits.MaxTotalBytes)))
		}
		if max <= 0 || remaining < max {
			max = remaining
		}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if f.UncompressedSize64 > 0 && (max <= 0 || f.UncompressedSize64 <= uint64(max)) {
		buf.Grow(int(f.UncompressedSize64))
	}
	n, err := CopyWithLimit(&buf, rc, max)
	a.mu.Lock()
	a.total += n
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", f.Name, err)
	}
	return buf.Bytes(), nil
}

// Transcript returns the decoded text of the archive's transcript entry.
func (a *Archive) Transcript() (string, error) {
	data, err := a.ReadFile(TranscriptEntry)
	if err != nil {
		return "", err
	}
	return textutil.DecodeTranscript(data), nil
}

// CopyWithLimit copies src to dst, failing with ErrExtractLimitExceeded
// once more than max bytes are available. max <= 0 copies everything. On
// overflow one extra byte may have been written to dst.
func CopyWithLimit(dst io.Writer, src io.Reader, max int64) (int64, error) {
	if max <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, max+1))
	if err != nil {
		return n, err
	}
	if n > max {
		return n, fmt.Errorf("%w: more than %s", ErrExtractLimitExceeded, humanize.IBytes(uint64(max)))
	}
	return n, nil
}

// entryName normalises a zip path: forward slashes, no leading "./" or
// "/", cleaned. Returns "" for names that clean to nothing.
func entryName(name string) string {
	n := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	n = strings.TrimLeft(n, "/")
	if n == "." || n == "" {
		return ""
	}
	return n
}
