// Package media moves the files attached to an imported chat into
// chat-scoped storage and maps each original attachment name to the URL it
// is served from.
package media

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/vault"
)

// Copier copies plain files out of an unzipped export folder.
type Copier interface {
	Copy(ctx context.Context, sourceDir, chatID string, files []string) (map[string]string, error)
}

// Uploader stores one encrypted media file and returns its URL. Uploading
// the same (chatID, filename) twice must be safe.
type Uploader interface {
	Upload(ctx context.Context, chatID, filename string, encrypted []byte) (string, error)
}

// KeyProvider supplies the session's encryption key, if one is active.
type KeyProvider interface {
	Key() (vault.Key, bool)
}

// URL returns the path media for chatID/name is served under.
func URL(chatID, name string) string {
	return urlPrefix + chatID + "/" + name
}

const urlPrefix = "/api/media/"

// ParseURL splits a media URL into its chat id and file name.
func ParseURL(url string) (chatID, name string, ok bool) {
	rest, found := strings.CutPrefix(url, urlPrefix)
	if !found {
		return "", "", false
	}
	chatID, name, found = strings.Cut(rest, "/")
	if !found || chatID == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return chatID, name, true
}

// Resolver resolves attachment names for one chat at a time.
type Resolver struct {
	loader   *source.Loader
	copier   Copier
	uploader Uploader
	keys     KeyProvider
	logger   *slog.Logger
}

// NewResolver returns a resolver. Any collaborator may be nil, which
// disables the strategy that needs it.
func NewResolver(loader *source.Loader, copier Copier, uploader Uploader, keys KeyProvider, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{loader: loader, copier: copier, uploader: uploader, keys: keys, logger: logger}
}

// Resolve returns original name to URL for the files of f that could be
// stored, or nil when nothing was. Errors are logged; the caller keeps the
// chat with its raw attachment names.
func (r *Resolver) Resolve(ctx context.Context, chatID string, f source.ImportFile, files []string) map[string]string {
	if len(files) == 0 {
		return nil
	}

	if dir, ok := f.FolderPath(); ok {
		if r.copier == nil {
			return nil
		}
		mapping, err := r.copier.Copy(ctx, dir, chatID, files)
		if err != nil {
			r.logger.Warn("copy media failed", "file", f.ID(), "chat", chatID, "error", err)
			return nil
		}
		if len(mapping) == 0 {
			return nil
		}
		return mapping
	}

	if r.loader == nil || r.uploader == nil || r.keys == nil {
		return nil
	}
	key, ok := r.keys.Key()
	if !ok {
		r.logger.Debug("no encryption key, skipping media", "file", f.ID())
		return nil
	}
	a, ok := r.loader.Archive(ctx, f)
	if !ok {
		return nil
	}
	defer a.Close()

	mapping := make(map[string]string)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("media upload cancelled", "file", f.ID(), "error", err)
			break
		}
		entry := a.Find(name)
		if entry == nil {
			r.logger.Debug("attachment not in archive", "file", f.ID(), "attachment", name)
			continue
		}
		data, err := a.ReadEntry(entry)
		if err != nil {
			r.logger.Warn("read attachment failed", "file", f.ID(), "attachment", name, "error", err)
			continue
		}
		sealed, err := vault.Encrypt(data, key)
		if err != nil {
			r.logger.Warn("encrypt attachment failed", "file", f.ID(), "attachment", name, "error", err)
			continue
		}
		url, err := r.uploader.Upload(ctx, chatID, name, sealed)
		if err != nil {
			r.logger.Warn("upload attachment failed", "file", f.ID(), "attachment", name, "error", err)
			continue
		}
		mapping[name] = url
	}
	if len(mapping) == 0 {
		return nil
	}
	return mapping
}
