package models

import (
	"fmt"
	"time"
)

// ChatKind distinguishes one-to-one chats from named group chats
type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

// Valid reports whether k is a known chat kind
func (k ChatKind) Valid() bool {
	return k == ChatKindDirect || k == ChatKindGroup
}

// Chat represents a conversation container. LastMessageText and LastMessageAuthor are the
// denormalized summary of the most recently stored message.
type Chat struct {
	ID        int64    `json:"id" db:"id"`
	Kind      ChatKind `json:"kind" db:"kind"`
	Name      *string  `json:"name,omitempty" db:"name"`
	AvatarURL *string  `json:"avatarUrl,omitempty" db:"avatar_url"`
	Bio       *string  `json:"bio,omitempty" db:"bio"`
	// Members is only populated for direct chats: the two participants, ascending.
	Members           []int64    `json:"members,omitempty" db:"members"`
	LastMessageID     *int64     `json:"-" db:"last_message_id"`
	LastMessageText   *string    `json:"lastMessageText,omitempty" db:"last_message_text"`
	LastMessageAuthor *int64     `json:"lastMessageAuthor,omitempty" db:"last_message_author"`
	LastMessageAt     *time.Time `json:"lastMessageAt,omitempty" db:"last_message_at"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" db:"updated_at"`
}

// SummaryIsOlderThan reports whether the stored last-message summary sorts before m
func (c *Chat) SummaryIsOlderThan(m *Message) bool {
	if c.LastMessageAt == nil || c.LastMessageID == nil {
		return true
	}
	if c.LastMessageAt.Equal(m.CreatedAt) {
		return *c.LastMessageID < m.ID
	}
	return c.LastMessageAt.Before(m.CreatedAt)
}

// IsDirect reports whether the chat is a direct (two member) chat
func (c *Chat) IsDirect() bool {
	return c.Kind == ChatKindDirect
}

// OtherMember returns the direct-chat participant that is not userID.
func (c *Chat) OtherMember(userID int64) (int64, bool) {
	if !c.IsDirect() {
		return 0, false
	}
	for _, m := range c.Members {
		if m != userID {
			return m, true
		}
	}
	return 0, false
}

// DirectKey returns the order-independent key identifying the direct chat between a and b.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
