package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxMessageLength = 1000

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message is durable. Immutable once created except for the read flag
// and soft deletion by its sender. Receiver is empty for helpline
// messages, which relay to the shared subscriber group instead.
type Message struct {
	ID            MessageID
	SenderID      UserID
	ReceiverID    UserID
	Body          string
	Kind          MessageKind
	IsRead        bool
	ReadAt        *time.Time
	AppointmentID string
	Helpline      bool
	CreatedAt     time.Time
}

func NewMessage(sender, receiver UserID, body string, kind MessageKind, appointmentID string, now time.Time) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, NewValidationError("message", "body cannot be empty")
	}
	if len(body) > MaxMessageLength {
		return nil, NewValidationError("message", "body exceeds maximum length")
	}
	if kind == "" {
		kind = MessageText
	}
	if !kind.Valid() {
		return nil, NewValidationError("messageType", "unknown message type")
	}
	return &Message{
		ID:            NewMessageID(),
		SenderID:      sender,
		ReceiverID:    receiver,
		Body:          body,
		Kind:          kind,
		AppointmentID: appointmentID,
		CreatedAt:     now,
	}, nil
}

// Preview shortens the body for notification events. Truncation is by
// rune so a multi-byte character is never split.
func (m *Message) Preview() string {
	const n = 50
	if utf8.RuneCountInString(m.Body) <= n {
		return m.Body
	}
	return string([]rune(m.Body)[:n]) + "..."
}

// ConversationSummary is one row of the conversation list: the most recent
// message with a counterpart plus how many of theirs are still unread.
type ConversationSummary struct {
	CounterpartID UserID
	LastMessage   *Message
	UnreadCount   int
}
