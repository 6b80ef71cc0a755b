package testutil

import (
	"fmt"
	"strings"
	"time"
)

// TranscriptBuilder writes iOS-style export transcripts for tests.
//
//	NewTranscript().Say("Alice", "hi").Attach("~Bob", "photo.jpg").String()
type TranscriptBuilder struct {
	at    time.Time
	step  time.Duration
	lines []string
}

// NewTranscript starts a transcript at 2024-01-01 13:00 with one minute
// between messages.
func NewTranscript() *TranscriptBuilder {
	return &TranscriptBuilder{
		at:   time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
		step: time.Minute,
	}
}

// StartingAt moves the clock used for the next message.
func (b *TranscriptBuilder) StartingAt(t time.Time) *TranscriptBuilder {
	b.at = t
	return b
}

// Say adds a text message.
func (b *TranscriptBuilder) Say(sender, text string) *TranscriptBuilder {
	b.lines = append(b.lines, fmt.Sprintf("[%s] %s: %s", b.at.Format("1/2/06, 3:04:05 PM"), sender, text))
	b.at = b.at.Add(b.step)
	return b
}

// Attach adds an attachment placeholder line.
func (b *TranscriptBuilder) Attach(sender, filename string) *TranscriptBuilder {
	return b.Say(sender, "<attached: "+filename+">")
}

// Raw appends a line verbatim, for continuations or malformed input.
func (b *TranscriptBuilder) Raw(line string) *TranscriptBuilder {
	b.lines = append(b.lines, line)
	return b
}

// String renders the transcript with newline separators.
func (b *TranscriptBuilder) String() string {
	return strings.Join(b.lines, "\n")
}

// Bytes renders the transcript as bytes.
func (b *TranscriptBuilder) Bytes() []byte {
	return []byte(b.String())
}
