package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/whatsapp"
)

const (
	DefaultBatchSize   = 10
	DefaultConcurrency = 3
)

// MediaResolver maps a chat's attachment names to stored media URLs.
// *media.Resolver implements it.
type MediaResolver interface {
	Resolve(ctx context.Context, chatID string, f source.ImportFile, files []string) map[string]string
}

// Progress reports extraction progress to the caller. Calls are
// serialised by the extractor.
type Progress interface {
	// OnStart is called once with the number of files to extract.
	OnStart(total int)

	// OnFileDone is called after each file, whether or not it produced a chat.
	OnFileDone(done, total int, message string)

	// OnFileSkipped is called when a file produced no chat.
	OnFileSkipped(id, reason string)

	// OnComplete is called when extraction finishes.
	OnComplete(result *Result)
}

// NullProgress is a no-op progress reporter.
type NullProgress struct{}

func (NullProgress) OnStart(total int)                          {}
func (NullProgress) OnFileDone(done, total int, message string) {}
func (NullProgress) OnFileSkipped(id, reason string)            {}
func (NullProgress) OnComplete(result *Result)                  {}

// Skip records a file that produced no chat.
type Skip struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result is the outcome of an extraction run.
type Result struct {
	Chats    []chat.Chat
	Skipped  []Skip
	Duration time.Duration
}

// Skip reasons.
const (
	ReasonUnreadable  = "could not read transcript"
	ReasonNoMessages  = "no messages found in transcript"
	ReasonPhoneNeeded = "phone number required"
)

// Extractor turns import files into chats. Files are processed in batches
// of BatchSize with at most Concurrency in flight; a failing file is
// skipped and never aborts the run.
type Extractor struct {
	Loader      *source.Loader
	Parser      *whatsapp.Parser
	Media       MediaResolver
	BatchSize   int
	Concurrency int
	Progress    Progress
	Logger      *slog.Logger
}

// tracker serialises progress callbacks for one run.
type tracker struct {
	mu       sync.Mutex
	progress Progress
	done     int
	total    int
}

func (t *tracker) fileDone(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if reason != "" {
		t.progress.OnFileSkipped(id, reason)
	}
	t.progress.OnFileDone(t.done, t.total, fmt.Sprintf("Extracted %d of %d chats...", t.done, t.total))
}

// NewExtractor returns an extractor with default batching.
func NewExtractor(loader *source.Loader, parser *whatsapp.Parser, media MediaResolver) *Extractor {
	return &Extractor{
		Loader:      loader,
		Parser:      parser,
		Media:       media,
		BatchSize:   DefaultBatchSize,
		Concurrency: DefaultConcurrency,
		Progress:    NullProgress{},
		Logger:      slog.Default(),
	}
}

// WithProgress sets the progress reporter.
func (e *Extractor) WithProgress(p Progress) *Extractor {
	e.Progress = p
	return e
}

// WithLogger sets the logger.
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	e.Logger = logger
	return e
}

// Extract parses every file into a chat, in input order. Per-file problems
// become Skips; the only errors are cancellation and ErrNothingExtracted,
// which comes with the result so callers can show why each file failed.
func (e *Extractor) Extract(ctx context.Context, files []source.ImportFile) (*Result, error) {
	start := time.Now()
	e.defaults()

	total := len(files)
	tr := &tracker{progress: e.Progress, total: total}
	e.Progress.OnStart(total)

	chats := make([]*chat.Chat, total)
	skips := make([]*Skip, total)

	for lo := 0; lo < total; lo += e.BatchSize {
		hi := min(lo+e.BatchSize, total)
		if err := e.runBatch(ctx, files[lo:hi], chats[lo:hi], skips[lo:hi], tr); err != nil {
			return nil, err
		}
	}

	result := &Result{}
	for i := range files {
		switch {
		case chats[i] != nil:
			result.Chats = append(result.Chats, *chats[i])
		case skips[i] != nil:
			result.Skipped = append(result.Skipped, *skips[i])
		}
	}
	result.Duration = time.Since(start)

	e.Progress.OnComplete(result)

	e.Logger.Info("extraction finished",
		"files", total,
		"chats", len(result.Chats),
		"skipped", len(result.Skipped),
		"duration", result.Duration.Round(time.Millisecond),
	)

	if total > 0 && len(result.Chats) == 0 {
		return result, ErrNothingExtracted
	}
	return result, nil
}

func (e *Extractor) defaults() {
	if e.BatchSize <= 0 {
		e.BatchSize = DefaultBatchSize
	}
	if e.Concurrency <= 0 {
		e.Concurrency = DefaultConcurrency
	}
	if e.Progress == nil {
		e.Progress = NullProgress{}
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Parser == nil {
		e.Parser = whatsapp.NewParser(whatsapp.WithLogger(e.Logger))
	}
}

func (e *Extractor) runBatch(ctx context.Context, files []source.ImportFile, chats []*chat.Chat, skips []*Skip, tr *tracker) error {
	sem := semaphore.NewWeighted(int64(e.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, f := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			c, reason := e.extractOne(gctx, f)
			if c != nil {
				chats[i] = c
			} else {
				skips[i] = &Skip{ID: f.ID(), Reason: reason}
			}
			tr.fileDone(f.ID(), reason)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// extractOne returns the chat for f, or nil and the reason it was skipped.
func (e *Extractor) extractOne(ctx context.Context, f source.ImportFile) (*chat.Chat, string) {
	f = f.Resolve()
	if f.NeedsPhoneNumber() {
		return nil, ReasonPhoneNeeded
	}

	if e.Loader == nil {
		return nil, ReasonUnreadable
	}
	text, ok := e.Loader.Load(ctx, f)
	if !ok {
		return nil, ReasonUnreadable
	}

	c, err := e.Parser.Parse(text, f.PhoneNumber())
	if err != nil {
		e.Logger.Warn("parse transcript failed", "file", f.ID(), "error", err)
		return nil, ReasonNoMessages
	}
	if name := f.ContactName(); name != "" {
		c.Name = name
	}

	if paths := chat.ExtractAttachmentPaths(*c); len(paths) > 0 && e.Media != nil {
		if mapping := e.Media.Resolve(ctx, c.ID, f, paths); mapping != nil {
			*c = chat.ApplyMediaMapping(*c, mapping)
		}
	}
	return c, ""
}
