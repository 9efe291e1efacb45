package models

import "time"

// MessageType represents the type of chat message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeDocument:
		return true
	}
	return false
}

// Message is an immutable entry of a chat's log. Messages are totally ordered by
// (CreatedAt, ID).
type Message struct {
	ID        int64       `json:"id" db:"id"`
	ChatID    int64       `json:"chatId" db:"chat_id"`
	AuthorID  int64       `json:"authorId" db:"author_id"`
	Type      MessageType `json:"type" db:"type"`
	Text      string      `json:"text" db:"text"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`

	// Related entities
	Author *User `json:"author,omitempty"`
}

// Before reports whether m sorts strictly before other in the chat's total order
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
