package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wesm/wahistory/internal/archive"
	"github.com/wesm/wahistory/internal/fileutil"
)

// Fetcher reads a server-side export path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

var (
	// ErrForbidden is returned for paths outside the import root.
	ErrForbidden = errors.New("path outside import root")
	// ErrNotFound is returned when the path does not exist.
	ErrNotFound = errors.New("export not found")
)

// DirFetcher reads files beneath Root. Relative paths are taken from Root;
// absolute paths must already lie inside it.
type DirFetcher struct {
	Root     string
	MaxBytes int64 // 0 means archive.DefaultMaxTotalBytes
}

// Resolve maps p to an absolute path inside Root, following symlinks so a
// link cannot point out of the root.
func (d DirFetcher) Resolve(p string) (string, error) {
	root, err := filepath.Abs(d.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realRoot := root
	if r, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = r
	}

	var full string
	if filepath.IsAbs(p) {
		full = filepath.Clean(p)
	} else if full, err = fileutil.SafeJoin(root, p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrForbidden, p)
	}
	if !fileutil.IsPathInBase(root, full) && !fileutil.IsPathInBase(realRoot, full) {
		return "", fmt.Errorf("%w: %s", ErrForbidden, p)
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", err
	}
	if !fileutil.IsPathInBase(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s", ErrForbidden, p)
	}
	return resolved, nil
}

func (d DirFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := d.Resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", p)
	}
	return readLimited(f, d.MaxBytes)
}

// HTTPFetcher reads exports from another instance's read-chat endpoint.
type HTTPFetcher struct {
	BaseURL  string
	APIKey   string
	Client   *http.Client
	Limiter  *rate.Limiter
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher for baseURL allowing qps requests per
// second, each bounded by timeout.
func NewHTTPFetcher(baseURL, apiKey string, qps float64, timeout time.Duration) *HTTPFetcher {
	if qps <= 0 {
		qps = 5
	}
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(rate.Limit(qps), 1),
	}
}

// StatusError reports a non-200 response.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d %s", e.Path, e.Code, http.StatusText(e.Code))
}

func (h *HTTPFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u := h.BaseURL + "/api/read-chat?path=" + url.QueryEscape(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if h.APIKey != "" {
		req.Header.Set("X-API-Key", h.APIKey)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return readLimited(resp.Body, h.MaxBytes)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrForbidden, p)
	default:
		return nil, &StatusError{Path: p, Code: resp.StatusCode}
	}
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = archive.DefaultMaxTotalBytes
	}
	var buf bytes.Buffer
	if _, err := archive.CopyWithLimit(&buf, r, max); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
