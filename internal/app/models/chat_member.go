package models

import "time"

// MemberRole is the capability level of a chat member
type MemberRole string

const (
	RoleAdmin      MemberRole = "admin"
	RoleMember     MemberRole = "member"
	RoleSubscriber MemberRole = "subscriber" // read only
)

// Valid reports whether r is a known role
func (r MemberRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleSubscriber:
		return true
	}
	return false
}

// CanPost reports whether the role may append messages
func (r MemberRole) CanPost() bool {
	return r == RoleAdmin || r == RoleMember
}

// CanRead reports whether the role may page through messages
func (r MemberRole) CanRead() bool {
	return r.Valid()
}

// ChatMember joins a user to a chat. LastSeen is the member's read watermark: every message
// created strictly after it is unread for this member. Only the member moves it, and only forward.
type ChatMember struct {
	ChatID    int64      `json:"chatId" db:"chat_id"`
	UserID    int64      `json:"userId" db:"user_id"`
	Role      MemberRole `json:"role" db:"role"`
	LastSeen  time.Time  `json:"lastSeen" db:"last_seen"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}
