package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/wahistory/internal/chat"
)

// MessageFilter selects messages across chats. Zero fields don't filter.
type MessageFilter struct {
	Text          string // case-insensitive substring of content or sender name
	ChatID        string
	After         *time.Time
	Before        *time.Time
	HasAttachment bool
	Limit         int
	Offset        int
}

// MessageHit is a matched message with the chat it belongs to.
type MessageHit struct {
	ChatID      string       `json:"chatId"`
	PhoneNumber string       `json:"phoneNumber"`
	ChatName    string       `json:"chatName,omitempty"`
	Message     chat.Message `json:"message"`
}

// DefaultSearchLimit caps a search with no limit.
const DefaultSearchLimit = 100

// SearchMessages returns messages matching f, newest first.
func (s *Store) SearchMessages(ctx context.Context, f MessageFilter) ([]MessageHit, error) {
	var (
		where []string
		args  []any
	)
	if t := strings.TrimSpace(f.Text); t != "" {
		pattern := "%" + escapeLike(strings.ToLower(t)) + "%"
		where = append(where, `(LOWER(m.content) LIKE ? ESCAPE '\' OR LOWER(m.sender_name) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.ChatID != "" {
		where = append(where, `m.chat_id = ?`)
		args = append(args, f.ChatID)
	}
	if f.After != nil {
		where = append(where, `m.sent_at_ms >= ?`)
		args = append(args, f.After.UnixMilli())
	}
	if f.Before != nil {
		where = append(where, `m.sent_at_ms < ?`)
		args = append(args, f.Before.UnixMilli())
	}
	if f.HasAttachment {
		where = append(where, `m.attachment_url != ''`)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	offset := max(f.Offset, 0)

	q := `
		SELECT c.id, c.phone_number, c.name,
			m.id, m.sent_at_ms, m.sender, m.sender_name, m.content, m.type, m.attachment_url, m.is_read
		FROM messages m JOIN chats c ON c.id = m.chat_id`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY m.sent_at_ms DESC, m.seq DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	hits := []MessageHit{}
	for rows.Next() {
		var (
			h           MessageHit
			sentAt      int64
			sender, typ string
		)
		m := &h.Message
		if err := rows.Scan(&h.ChatID, &h.PhoneNumber, &h.ChatName,
			&m.ID, &sentAt, &sender, &m.SenderName, &m.Content, &typ, &m.AttachmentURL, &m.IsRead); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.UnixMilli(sentAt).UTC()
		m.Sender = chat.Sender(sender)
		m.Type = chat.MessageType(typ)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
