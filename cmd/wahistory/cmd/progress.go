package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/wesm/wahistory/internal/importer"
	"github.com/wesm/wahistory/internal/textutil"
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ExtractCLIProgress implements importer.Progress for terminal output. The
// progress line is redrawn in place on a TTY; elsewhere only skips and the
// final line are printed.
type ExtractCLIProgress struct {
	out         io.Writer
	interactive bool

	mu        sync.Mutex
	startTime time.Time
	lastPrint time.Time
}

// newExtractProgress returns a progress reporter writing to stdout.
func newExtractProgress() *ExtractCLIProgress {
	return &ExtractCLIProgress{out: os.Stdout, interactive: isTerminal(os.Stdout)}
}

func (p *ExtractCLIProgress) OnStart(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
	p.lastPrint = time.Time{}
	fmt.Fprintf(p.out, "Extracting %s %s...\n", humanize.Comma(int64(total)), plural(total, "chat", "chats"))
}

func (p *ExtractCLIProgress) OnFileDone(done, total int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.interactive {
		return
	}
	// Throttle redraws, but always draw the last one.
	if done < total && time.Since(p.lastPrint) < 200*time.Millisecond {
		return
	}
	p.lastPrint = time.Now()
	fmt.Fprintf(p.out, "\r  %s | Elapsed: %s    ", message, formatDuration(time.Since(p.startTime)))
}

func (p *ExtractCLIProgress) OnFileSkipped(id, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "  Skipped %s: %s\n", textutil.SanitizeTerminal(id), reason)
}

func (p *ExtractCLIProgress) OnComplete(result *importer.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "Extracted %d of %d in %s\n",
		len(result.Chats), len(result.Chats)+len(result.Skipped), formatDuration(result.Duration))
}

// formatDuration renders d as 1h02m03s, 2m03s or 3s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
