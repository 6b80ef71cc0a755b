package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wesm/wahistory/internal/archive"
	"github.com/wesm/wahistory/internal/textutil"
)

// Loader resolves import files to transcript text. Failures are logged and
// reported as "not loaded"; callers keep going with the rest of a batch.
type Loader struct {
	fetcher Fetcher
	limits  archive.Limits
	logger  *slog.Logger
}

// NewLoader returns a loader. fetcher may be nil when no server-side
// exports are expected.
func NewLoader(fetcher Fetcher, limits archive.Limits, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fetcher: fetcher, limits: limits, logger: logger}
}

// Load returns the transcript text for f.
func (l *Loader) Load(ctx context.Context, f ImportFile) (string, bool) {
	text, err := l.load(ctx, f)
	if err != nil {
		l.logger.Warn("load transcript failed", "file", f.ID(), "kind", f.Kind, "error", err)
		return "", false
	}
	return text, true
}

func (l *Loader) load(ctx context.Context, f ImportFile) (string, error) {
	switch o := f.Origin.(type) {
	case Inline:
		if o.Text == "" {
			return "", fmt.Errorf("empty inline content")
		}
		return o.Text, nil

	case ServerPath:
		if o.Path == "" {
			return "", fmt.Errorf("empty server path")
		}
		if l.fetcher == nil {
			return "", fmt.Errorf("no fetcher for server path %s", o.Path)
		}
		switch f.Kind {
		case KindZip:
			a, err := l.fetchArchive(ctx, o.Path)
			if err != nil {
				return "", err
			}
			return a.Transcript()
		case KindFolder:
			data, err := l.fetcher.Fetch(ctx, transcriptPath(o.Path))
			if err != nil {
				return "", err
			}
			return textutil.DecodeTranscript(data), nil
		default:
			data, err := l.fetcher.Fetch(ctx, o.Path)
			if err != nil {
				return "", err
			}
			return textutil.DecodeTranscript(data), nil
		}

	case Handle:
		switch strings.ToLower(pathExt(o.Name)) {
		case ".zip":
			a, err := l.openHandleArchive(o)
			if err != nil {
				return "", err
			}
			return a.Transcript()
		case ".txt":
			data, err := l.readHandle(o, l.limits.MaxEntryBytes)
			if err != nil {
				return "", err
			}
			return textutil.DecodeTranscript(data), nil
		}
		return "", fmt.Errorf("unsupported file %s", o.Name)
	}
	return "", fmt.Errorf("no content source")
}

// Archive opens the zip behind f: a .zip handle first, then a zip server
// path. Folder and text exports have no archive.
func (l *Loader) Archive(ctx context.Context, f ImportFile) (*archive.Archive, bool) {
	var (
		a   *archive.Archive
		err error
	)
	switch o := f.Origin.(type) {
	case Handle:
		if !strings.EqualFold(pathExt(o.Name), ".zip") {
			return nil, false
		}
		a, err = l.openHandleArchive(o)
	case ServerPath:
		if f.Kind != KindZip || o.Path == "" || l.fetcher == nil {
			return nil, false
		}
		a, err = l.fetchArchive(ctx, o.Path)
	default:
		return nil, false
	}
	if err != nil {
		l.logger.Warn("open archive failed", "file", f.ID(), "error", err)
		return nil, false
	}
	return a, true
}

func (l *Loader) fetchArchive(ctx context.Context, p string) (*archive.Archive, error) {
	data, err := l.fetcher.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return archive.Open(data, l.limits)
}

func (l *Loader) openHandleArchive(h Handle) (*archive.Archive, error) {
	data, err := l.readHandle(h, l.limits.MaxTotalBytes)
	if err != nil {
		return nil, err
	}
	return archive.Open(data, l.limits)
}

func (l *Loader) readHandle(h Handle, max int64) ([]byte, error) {
	if h.Open == nil {
		return nil, fmt.Errorf("handle %s cannot be opened", h.Name)
	}
	rc, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := archive.CopyWithLimit(&buf, rc, max); err != nil {
		return nil, fmt.Errorf("read %s: %w", h.Name, err)
	}
	return buf.Bytes(), nil
}

// transcriptPath is the transcript inside an unzipped export folder.
func transcriptPath(folder string) string {
	return strings.TrimRight(folder, `/\`) + "/" + archive.TranscriptEntry
}

func pathExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && !strings.ContainsAny(name[i:], `/\`) {
		return name[i:]
	}
	return ""
}
