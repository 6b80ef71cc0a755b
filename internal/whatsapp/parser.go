package whatsapp

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/wahistory/internal/chat"
)

// ErrNoMessages is returned when a transcript yields no valid message:
// empty input, garbage, or a layout no dialect recognises.
var ErrNoMessages = errors.New("transcript contains no messages")

// invisibleMarks are stripped from every line before matching. WhatsApp
// sprinkles bidi controls around names, attachments and system notices.
var invisibleMarks = strings.NewReplacer(
	"\u200b", "", "\u200c", "", "\u200d", "", "\u200e", "", "\u200f", "",
	"\u202a", "", "\u202b", "", "\u202c", "", "\u202d", "", "\u202e", "",
	"\u2066", "", "\u2067", "", "\u2068", "", "\u2069", "",
	"\ufeff", "",
)

// Parser turns transcripts into chats.
type Parser struct {
	dialects []Dialect
	loc      *time.Location
	logger   *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLocation sets the zone transcript timestamps are read in.
// Exports carry no zone; the default is the local zone.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithDialects replaces the dialects tried, in order.
func WithDialects(ds ...Dialect) Option {
	return func(p *Parser) {
		if len(ds) > 0 {
			p.dialects = ds
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser returns a parser for the default dialects in local time.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		dialects: DefaultDialects(),
		loc:      time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// ParseTranscript parses text with the default parser.
func ParseTranscript(text, phoneNumber string) (*chat.Chat, error) {
	return defaultParser.Parse(text, phoneNumber)
}

// parsedLine is a message under construction.
type parsedLine struct {
	ts         time.Time
	sender     string
	content    string
	attachment string
}

func (l *parsedLine) isAttachment() bool { return l.attachment != "" }

// Parse builds the chat for phoneNumber from a transcript. Malformed
// header lines are dropped without failing the whole transcript; the only
// error is ErrNoMessages.
func (p *Parser) Parse(text, phoneNumber string) (*chat.Chat, error) {
	lines := cleanLines(text)
	d := p.detect(lines)
	if d == nil {
		return nil, ErrNoMessages
	}

	var parsed []*parsedLine
	var current *parsedLine
	dropped := 0
	for _, line := range lines {
		h, ok := d.MatchHeader(line)
		if !ok {
			// Continuation of a multi-line message. Attachment placeholders
			// are never extended.
			if current != nil && !current.isAttachment() {
				current.content += "\n" + line
			}
			continue
		}

		ts, ok := d.ParseTimestamp(h.Date, h.Clock, p.loc)
		if !ok {
			dropped++
			current = nil
			continue
		}
		current = &parsedLine{ts: ts, sender: h.Sender, content: h.Content}
		if name, ok := d.Attachment(h.Content); ok {
			current.attachment = name
			current.content = "📎 " + name
		}
		parsed = append(parsed, current)
	}

	valid := parsed[:0]
	for _, l := range parsed {
		if strings.TrimSpace(l.content) == "" || l.ts.IsZero() {
			continue
		}
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return nil, ErrNoMessages
	}
	if dropped > 0 {
		p.logger.Debug("dropped malformed transcript lines", "dialect", d.Name(), "count", dropped)
	}

	client := resolveClient(d, valid)

	msgs := make([]chat.Message, 0, len(valid))
	for _, l := range valid {
		m := chat.Message{
			ID:         chat.NewMessageID(),
			Timestamp:  l.ts,
			Sender:     chat.SenderUser,
			SenderName: strings.TrimSpace(strings.TrimPrefix(l.sender, UnsavedContactMarker)),
			Content:    l.content,
			Type:       chat.TypeText,
			IsRead:     true,
		}
		if l.sender == client {
			m.Sender = chat.SenderClient
		}
		switch {
		case l.isAttachment():
			m.Type = chat.ClassifyAttachment(l.attachment)
			m.AttachmentURL = l.attachment
		case d.IsSystemNotice(l.content):
			m.Sender = chat.SenderSystem
			m.Type = chat.TypeSystem
			m.SenderName = chat.SystemSenderName
		}
		msgs = append(msgs, m)
	}

	name := strings.TrimSpace(strings.TrimPrefix(client, UnsavedContactMarker))
	if name == phoneNumber {
		name = ""
	}
	c := chat.New(phoneNumber, name, msgs)
	return &c, nil
}

// detect returns the first dialect that recognises any line.
func (p *Parser) detect(lines []string) Dialect {
	for _, d := range p.dialects {
		for _, line := range lines {
			if _, ok := d.MatchHeader(line); ok {
				return d
			}
		}
	}
	return nil
}

// resolveClient picks the sender treated as the other party. Exports do
// not say which side is the exporting device, so the first sender seen is
// assumed to be the client unless some sender is an unsaved contact, which
// only the other party can be.
func resolveClient(d Dialect, lines []*parsedLine) string {
	var senders []string
	seen := make(map[string]bool)
	for _, l := range lines {
		if !seen[l.sender] {
			seen[l.sender] = true
			senders = append(senders, l.sender)
		}
	}
	for _, s := range senders {
		if d.IsUnsavedContact(s) {
			return s
		}
	}
	return senders[0]
}

func cleanLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(invisibleMarks.Replace(line))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
