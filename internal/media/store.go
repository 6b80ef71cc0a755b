package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/fileutil"
	"github.com/wesm/wahistory/internal/source"
)

// EncryptedSuffix marks media files stored sealed with the session key.
const EncryptedSuffix = ".enc"

// ErrInvalidName is returned for chat ids or file names that cannot be
// mapped to a file inside the media directory.
var ErrInvalidName = errors.New("invalid media name")

// chatDir returns <mediaDir>/<chatID>, refusing ids that are not a single
// path element.
func chatDir(mediaDir, chatID string) (string, error) {
	if chatID == "" || chatID == "." || chatID == ".." || strings.ContainsAny(chatID, `/\`) {
		return "", fmt.Errorf("%w: chat id %q", ErrInvalidName, chatID)
	}
	return fileutil.SafeJoin(mediaDir, chatID)
}

// contentName is the write-once destination for a copied file:
// the first 16 hex digits of its SHA-1 plus the original extension.
func contentName(data []byte, original string) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:16] + chat.Ext(original)
}

// FSCopier copies attachments out of export folders below RawRoot into
// MediaDir/<chatID>/.
type FSCopier struct {
	RawRoot  string
	MediaDir string
	// MaxBytes bounds a single file; 0 means no limit.
	MaxBytes int64
}

// Copy looks each file up by base name in sourceDir and copies it under a
// content-derived name. Files that are missing are left out of the result.
func (c *FSCopier) Copy(ctx context.Context, sourceDir, chatID string, files []string) (map[string]string, error) {
	src, err := source.DirFetcher{Root: c.RawRoot}.Resolve(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("copy media: %w", err)
	}
	st, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("copy media: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("copy media: %s is not a directory", sourceDir)
	}
	dest, err := chatDir(c.MediaDir, chatID)
	if err != nil {
		return nil, err
	}
	if err := fileutil.SecureMkdirAll(dest, 0700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	copied := make(map[string]string, len(files))
	for _, requested := range files {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		name := filepath.Base(requested)
		if name == "." || name == string(filepath.Separator) {
			continue
		}
		data, err := c.read(filepath.Join(src, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		destName := contentName(data, name)
		if err := writeOnce(filepath.Join(dest, destName), data); err != nil {
			return nil, err
		}
		copied[requested] = URL(chatID, destName)
	}
	return copied, nil
}

func (c *FSCopier) read(path string) ([]byte, error) {
	f, err := fileutil.OpenNoFollow(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if c.MaxBytes > 0 && st.Size() > c.MaxBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, c.MaxBytes)
	}
	return io.ReadAll(f)
}

// writeOnce writes data to path unless a file is already there. An existing
// destination was produced from the same content or the same upload name
// and is reused as is.
func writeOnce(path string, data []byte) error {
	if _, err := os.Lstat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("lstat media file: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}
	return nil
}

// LocalStore keeps encrypted uploads under Dir/<chatID>/.
type LocalStore struct {
	Dir string
}

// Upload stores encrypted as <sanitised filename>.enc. A second upload for
// the same name keeps the first file.
func (s *LocalStore) Upload(ctx context.Context, chatID, filename string, encrypted []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := chatDir(s.Dir, chatID)
	if err != nil {
		return "", err
	}
	name := SanitizeFilename(filepath.Base(filename))
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	name += EncryptedSuffix
	if err := fileutil.SecureMkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := writeOnce(filepath.Join(dir, name), encrypted); err != nil {
		return "", err
	}
	return URL(chatID, name), nil
}

// Open returns the stored file chatID/name without following symlinks.
func (s *LocalStore) Open(chatID, name string) (*os.File, error) {
	dir, err := chatDir(s.Dir, chatID)
	if err != nil {
		return nil, err
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	full, err := fileutil.SafeJoin(dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return fileutil.OpenNoFollow(full)
}

// ReadFile reads chatID/name into memory.
func (s *LocalStore) ReadFile(chatID, name string) ([]byte, error) {
	f, err := s.Open(chatID, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Fetch reads the file behind a media URL. It is the FetchFunc of a
// DecryptCache over this store.
func (s *LocalStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chatID, name, ok := ParseURL(url)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, url)
	}
	return s.ReadFile(chatID, name)
}

// RemoveChat deletes all media stored for chatID.
func (s *LocalStore) RemoveChat(chatID string) error {
	dir, err := chatDir(s.Dir, chatID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// IsEncrypted reports whether a stored media name holds sealed bytes.
func IsEncrypted(name string) bool {
	return strings.HasSuffix(name, EncryptedSuffix)
}

// PlainName strips the encrypted suffix, leaving the name whose extension
// determines the content type.
func PlainName(name string) string {
	return strings.TrimSuffix(name, EncryptedSuffix)
}

// SanitizeFilename replaces characters that are unsafe in file names.
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/', r == '\\', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
