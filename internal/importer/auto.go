package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/wahistory/internal/source"
)

// Deps are the collaborators of an unattended import.
type Deps struct {
	Extractor *Extractor
	Phones    PhoneIndex
	Committer Committer
	Logger    *slog.Logger
}

// AutoResult summarises an unattended import.
type AutoResult struct {
	Scanned  int
	Existing int      // files whose phone number already had a chat
	Pending  []string // contact-name exports that need a number from the user
	Imported int
	Skipped  []Skip
	Duration time.Duration
}

// AutoImport imports every new export in rawDir without asking: files whose
// number already has a chat are left alone, contact-name exports are
// reported as pending, and the rest are extracted and saved in one
// transaction.
func AutoImport(ctx context.Context, deps Deps, rawDir string) (*AutoResult, error) {
	start := time.Now()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Extractor == nil || deps.Committer == nil {
		return nil, errors.New("auto import: extractor and committer are required")
	}

	files, err := ScanDir(rawDir)
	if err != nil {
		return nil, err
	}
	res := &AutoResult{Scanned: len(files)}

	existing := map[string]bool{}
	if deps.Phones != nil {
		existing, err = deps.Phones.PhoneNumbers(ctx)
		if err != nil {
			return nil, fmt.Errorf("load existing phone numbers: %w", err)
		}
	}

	var todo []source.ImportFile
	queued := make(map[string]bool)
	for _, f := range files {
		if f.NeedsPhoneNumber() {
			res.Pending = append(res.Pending, f.ID())
			continue
		}
		p := f.PhoneNumber()
		if existing[p] || queued[p] {
			res.Existing++
			continue
		}
		queued[p] = true
		todo = append(todo, f)
	}

	if len(todo) == 0 {
		res.Duration = time.Since(start)
		logger.Info("auto import: nothing new", "dir", rawDir, "scanned", res.Scanned)
		return res, nil
	}

	result, err := deps.Extractor.Extract(ctx, todo)
	if result != nil {
		res.Skipped = result.Skipped
	}
	if errors.Is(err, ErrNothingExtracted) {
		res.Duration = time.Since(start)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if err := deps.Committer.SaveChats(ctx, result.Chats); err != nil {
		return nil, fmt.Errorf("save chats: %w", err)
	}
	res.Imported = len(result.Chats)
	res.Duration = time.Since(start)

	logger.Info("auto import finished",
		"dir", rawDir,
		"scanned", res.Scanned,
		"imported", res.Imported,
		"existing", res.Existing,
		"pending", len(res.Pending),
		"skipped", len(res.Skipped),
	)
	return res, nil
}
