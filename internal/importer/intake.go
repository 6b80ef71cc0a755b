// Package importer turns WhatsApp exports into stored chats: it validates
// candidate files, drives the interactive import wizard, and extracts chats
// in bounded parallel batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/wahistory/internal/archive"
	"github.com/wesm/wahistory/internal/phone"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/textutil"
)

// TranscriptName is the transcript file inside every export.
const TranscriptName = archive.TranscriptEntry

// maxTextBytes caps how much of a dropped .txt export is read at intake.
const maxTextBytes = 64 << 20

// Candidate is a file offered for import before validation.
type Candidate struct {
	Name   string
	Origin source.Origin
}

// Validate checks a candidate and works out whose chat it holds. existing
// and queued are phone numbers that already have a chat or are already
// selected; a known number in either is rejected with *DuplicateError.
// Contact-name exports are accepted as pending and checked once the user
// supplies a number.
//
// Local text exports are read here and carry their content inline
// afterwards.
func Validate(ctx context.Context, c Candidate, existing, queued map[string]bool) (source.ImportFile, error) {
	base := filepath.Base(c.Name)
	lower := strings.ToLower(base)
	if !strings.HasSuffix(lower, ".txt") && !strings.HasSuffix(lower, ".zip") {
		return source.ImportFile{}, fmt.Errorf("%s: %w", base, ErrInvalidFileType)
	}
	if lower == TranscriptName {
		return source.ImportFile{}, fmt.Errorf("%s: %w", base, ErrInternalChatFile)
	}

	f := source.ImportFile{Name: base, Kind: source.KindOf(base), Origin: c.Origin}

	var token string
	if strings.Contains(base, phone.ExportPrefix) {
		token = phone.ExtractFromFilename(trimExt(base))
	}

	if _, remote := c.Origin.(source.ServerPath); f.Kind == source.KindFile && !remote {
		text, err := readText(ctx, c.Origin)
		if err != nil {
			return source.ImportFile{}, fmt.Errorf("%s: %w: %v", base, ErrUnreadable, err)
		}
		f.Origin = source.Inline{Text: text}
		if token == "" {
			token = phone.ExtractFromContent(text)
		}
	}

	if token == "" {
		return source.ImportFile{}, fmt.Errorf("%s: %w", base, ErrNoPhoneNumber)
	}

	if !phone.IsPhoneNumber(token) {
		f.Identity = source.Pending{ContactName: token}
		return f, nil
	}

	f.Identity = source.Known{PhoneNumber: token}
	if existing[token] || queued[token] {
		return source.ImportFile{}, &DuplicateError{Phone: token}
	}
	return f, nil
}

// readText returns the decoded text of a text export.
func readText(ctx context.Context, o source.Origin) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch o := o.(type) {
	case source.Inline:
		return o.Text, nil
	case source.Handle:
		if o.Open == nil {
			return "", errors.New("no opener")
		}
		rc, err := o.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxTextBytes+1))
		if err != nil {
			return "", err
		}
		if len(data) > maxTextBytes {
			return "", fmt.Errorf("larger than %d bytes", maxTextBytes)
		}
		return textutil.DecodeTranscript(data), nil
	}
	return "", fmt.Errorf("unsupported origin %T", o)
}

// ScanDir lists the exports sitting in root: .zip archives, .txt
// transcripts, and unzipped folders holding a transcript. Hidden entries
// and names without an identity token are ignored.
func ScanDir(root string) ([]source.ImportFile, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var files []source.ImportFile
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		stem := name
		if !e.IsDir() {
			stem = trimExt(name)
		}
		token := phone.ExtractFromFilename(stem)
		if token == "" {
			continue
		}

		full := filepath.Join(root, name)
		var kind source.Kind
		switch {
		case e.IsDir():
			if _, err := os.Stat(filepath.Join(full, TranscriptName)); err != nil {
				continue
			}
			kind = source.KindFolder
		case strings.EqualFold(filepath.Ext(name), ".zip"):
			kind = source.KindZip
		case strings.EqualFold(filepath.Ext(name), ".txt"):
			kind = source.KindFile
		default:
			continue
		}

		f := source.ImportFile{Name: name, Kind: kind, Origin: source.ServerPath{Path: full}}
		if phone.IsPhoneNumber(token) {
			f.Identity = source.Known{PhoneNumber: token}
		} else {
			f.Identity = source.Pending{ContactName: token}
		}
		files = append(files, f)
	}
	return files, nil
}

// trimExt drops the extension so the identity token never carries it,
// whatever its case.
func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
