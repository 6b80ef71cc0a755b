package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wesm/wahistory/internal/chat"
)

// ChatSummary is a chat without its message list, as shown in listings.
type ChatSummary struct {
	ID           string       `json:"id"`
	PhoneNumber  string       `json:"phoneNumber"`
	Name         string       `json:"name,omitempty"`
	LastMessage  chat.Message `json:"lastMessage"`
	UnreadCount  int          `json:"unreadCount"`
	MessageCount int          `json:"messageCount"`
}

// DisplayName returns the contact name, or the phone number when unnamed.
func (c ChatSummary) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.PhoneNumber
}

// PhoneNumbers returns the set of phone numbers that already have a chat.
func (s *Store) PhoneNumbers(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phone_number FROM chats`)
	if err != nil {
		return nil, fmt.Errorf("list phone numbers: %w", err)
	}
	defer rows.Close()

	phones := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan phone number: %w", err)
		}
		phones[p] = true
	}
	return phones, rows.Err()
}

// SaveChats inserts chats and their messages in one transaction. Nothing is
// saved if any chat fails; a phone number that is already taken yields
// ErrDuplicatePhone.
func (s *Store) SaveChats(ctx context.Context, chats []chat.Chat) error {
	if len(chats) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		chatStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chats (id, phone_number, name, created_at, updated_at, last_message_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare chat insert: %w", err)
		}
		defer chatStmt.Close()

		msgStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO messages (id, chat_id, seq, sent_at_ms, sender, sender_name, content, type, attachment_url, is_read)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare message insert: %w", err)
		}
		defer msgStmt.Close()

		for _, c := range chats {
			if c.ID == "" {
				c.ID = chat.NewChatID()
			}
			var lastAt int64
			if !c.LastMessage.Timestamp.IsZero() {
				lastAt = c.LastMessage.Timestamp.UnixMilli()
			}
			if _, err := chatStmt.ExecContext(ctx, c.ID, c.PhoneNumber, c.Name, now, now, lastAt); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s", ErrDuplicatePhone, c.PhoneNumber)
				}
				return fmt.Errorf("insert chat %s: %w", c.PhoneNumber, err)
			}
			for i, m := range c.Messages {
				if m.ID == "" {
					m.ID = chat.NewMessageID()
				}
				_, err := msgStmt.ExecContext(ctx, m.ID, c.ID, i, m.Timestamp.UnixMilli(),
					string(m.Sender), m.SenderName, m.Content, string(m.Type), m.AttachmentURL, m.IsRead)
				if err != nil {
					return fmt.Errorf("insert message %s: %w", m.ID, err)
				}
			}
		}
		return nil
	})
}

const summaryQuery = `
	SELECT c.id, c.phone_number, c.name,
		(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
		(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id AND m.sender = 'client' AND m.is_read = 0)
	FROM chats c`

// ListChats returns summaries of every chat, most recent activity first.
func (s *Store) ListChats(ctx context.Context) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery+` ORDER BY c.last_message_at DESC, c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	var out []ChatSummary
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.ID, &c.PhoneNumber, &c.Name, &c.MessageCount, &c.UnreadCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		last, err := s.lastMessage(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].LastMessage = last
	}
	return out, nil
}

// lastMessage mirrors chat.LastMessage: the latest non-system message,
// else the latest message.
func (s *Store) lastMessage(ctx context.Context, chatID string) (chat.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sent_at_ms, sender, sender_name, content, type, attachment_url, is_read
		FROM messages WHERE chat_id = ?
		ORDER BY (sender = 'system'), seq DESC
		LIMIT 1`, chatID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, nil
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("last message of %s: %w", chatID, err)
	}
	return m, nil
}

// GetChat returns the chat with its messages in timestamp order.
func (s *Store) GetChat(ctx context.Context, id string) (*chat.Chat, error) {
	return s.getChat(ctx, `WHERE id = ?`, id)
}

// GetChatByPhone returns the chat for a phone number.
func (s *Store) GetChatByPhone(ctx context.Context, phoneNumber string) (*chat.Chat, error) {
	return s.getChat(ctx, `WHERE phone_number = ?`, phoneNumber)
}

func (s *Store) getChat(ctx context.Context, where string, arg string) (*chat.Chat, error) {
	var c chat.Chat
	err := s.db.QueryRowContext(ctx, `SELECT id, phone_number, name FROM chats `+where, arg).
		Scan(&c.ID, &c.PhoneNumber, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", arg, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sent_at_ms, sender, sender_name, content, type, attachment_url, is_read
		FROM messages WHERE chat_id = ? ORDER BY seq`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get messages of %s: %w", c.ID, err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c = c.WithMessages(msgs)
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (chat.Message, error) {
	var (
		m           chat.Message
		sentAt      int64
		sender, typ string
	)
	if err := r.Scan(&m.ID, &sentAt, &sender, &m.SenderName, &m.Content, &typ, &m.AttachmentURL, &m.IsRead); err != nil {
		return chat.Message{}, err
	}
	m.Timestamp = time.UnixMilli(sentAt).UTC()
	m.Sender = chat.Sender(sender)
	m.Type = chat.MessageType(typ)
	return m, nil
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// UpdateChatNameByPhone sets the display name of the chat with the given
// phone number, reporting whether such a chat exists.
func (s *Store) UpdateChatNameByPhone(ctx context.Context, phoneNumber, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chats SET name = ?, updated_at = ? WHERE phone_number = ?`,
		name, time.Now().UnixMilli(), phoneNumber)
	if err != nil {
		return false, fmt.Errorf("update chat name %s: %w", phoneNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkRead marks every message of a chat as read and returns how many
// changed.
func (s *Store) MarkRead(ctx context.Context, chatID string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE id = ?`, chatID).Scan(&exists); err != nil {
			return fmt.Errorf("check chat %s: %w", chatID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, chatID)
		}
		res, err := tx.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE chat_id = ? AND is_read = 0`, chatID)
		if err != nil {
			return fmt.Errorf("mark read %s: %w", chatID, err)
		}
		n, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, time.Now().UnixMilli(), chatID)
		return err
	})
	return n, err
}
