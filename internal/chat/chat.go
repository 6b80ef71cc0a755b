// Package chat defines the imported conversation model: chats keyed by
// phone number, their timestamp-ordered messages, and the derived fields
// (last message, unread count) that are recomputed whenever a chat changes.
package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser   Sender = "user"   // the device owner who exported the chat
	SenderClient Sender = "client" // the other party
	SenderSystem Sender = "system" // transcript annotations such as encryption notices
)

// MessageType classifies a message by its attachment.
type MessageType string

const (
	TypeText       MessageType = "text"
	TypeImage      MessageType = "image"
	TypeAudio      MessageType = "audio"
	TypeVideo      MessageType = "video"
	TypeAttachment MessageType = "attachment"
	TypeSystem     MessageType = "system"
)

// SystemSenderName is the display name given to system messages.
const SystemSenderName = "System"

// Message is one entry of a conversation. Messages are values: code that
// changes one builds a copy.
type Message struct {
	ID            string      `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	Sender        Sender      `json:"sender"`
	SenderName    string      `json:"senderName"`
	Content       string      `json:"content"`
	Type          MessageType `json:"type"`
	AttachmentURL string      `json:"attachmentUrl,omitempty"`
	IsRead        bool        `json:"isRead"`
}

// HasAttachment reports whether the message refers to a media file.
func (m Message) HasAttachment() bool {
	return m.Type != TypeText && m.Type != TypeSystem && m.AttachmentURL != ""
}

// Chat is one conversation, uniquely keyed by PhoneNumber.
type Chat struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phoneNumber"`
	Name        string    `json:"name,omitempty"`
	Messages    []Message `json:"messages"`
	LastMessage Message   `json:"lastMessage"`
	UnreadCount int       `json:"unreadCount"`
}

// DisplayName returns the contact name, or the phone number when unnamed.
func (c Chat) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.PhoneNumber
}

// New builds a chat with a fresh ID from the given messages.
func New(phoneNumber, name string, msgs []Message) Chat {
	c := Chat{
		ID:          NewChatID(),
		PhoneNumber: phoneNumber,
		Name:        name,
	}
	return c.WithMessages(msgs)
}

// WithMessages returns a copy of c holding msgs sorted by timestamp
// (stable) with LastMessage and UnreadCount recomputed. c is not modified.
func (c Chat) WithMessages(msgs []Message) Chat {
	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	c.Messages = sorted
	c.LastMessage = LastMessage(sorted)
	c.UnreadCount = UnreadCount(sorted)
	return c
}

// LastMessage returns the chronologically last non-system message of a
// timestamp-ascending slice, falling back to the last message overall.
// Returns the zero Message for an empty slice.
func LastMessage(msgs []Message) Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender != SenderSystem {
			return msgs[i]
		}
	}
	if len(msgs) > 0 {
		return msgs[len(msgs)-1]
	}
	return Message{}
}

// UnreadCount counts client messages not yet read.
func UnreadCount(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.Sender == SenderClient && !m.IsRead {
			n++
		}
	}
	return n
}

// NewMessageID returns an opaque unique message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NewChatID returns an opaque unique chat identifier, distinct in shape
// from message IDs.
func NewChatID() string {
	return "chat_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
