package dto

import (
	"time"

	"github.com/yigit/chatsphere/internal/app/models"
)

// --- Request DTOs ---

// CreateChatRequest represents data for creating a direct or group chat. Members lists the
// other participants; the caller is always added as admin.
type CreateChatRequest struct {
	Kind      string  `json:"kind" binding:"required,oneof=direct group"`
	Name      *string `json:"name" binding:"omitempty,max=60"`
	AvatarURL *string `json:"avatarUrl" binding:"omitempty,max=512"`
	Bio       *string `json:"bio" binding:"omitempty,max=280"`
	Members   []int64 `json:"members" binding:"required,min=1,dive,gt=0"`
}

// AddMemberRequest represents adding a user to a group chat
type AddMemberRequest struct {
	UserID int64  `json:"userId" binding:"required,gt=0"`
	Role   string `json:"role" binding:"omitempty,oneof=admin member subscriber"`
}

// --- Response DTOs ---

// ChatResponse is the public view of a chat, pushed with new_chat
type ChatResponse struct {
	ID                int64     `json:"id"`
	Kind              string    `json:"kind"`
	Name              *string   `json:"name,omitempty"`
	AvatarURL         *string   `json:"avatarUrl,omitempty"`
	Bio               *string   `json:"bio,omitempty"`
	Members           []int64   `json:"members,omitempty"`
	LastMessageText   *string   `json:"lastMessageText,omitempty"`
	LastMessageAuthor *int64    `json:"lastMessageAuthor,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ChatSummaryResponse is one row of a user's chat list. Direct chats carry the other member's
// name and avatar. UnreadCount never exceeds the configured cap; UnreadCapped is set when the
// real count is larger.
type ChatSummaryResponse struct {
	ID                int64     `json:"id"`
	Kind              string    `json:"kind"`
	Name              string    `json:"name"`
	AvatarURL         *string   `json:"avatarUrl,omitempty"`
	Bio               *string   `json:"bio,omitempty"`
	PeerID            *int64    `json:"peerId,omitempty"`
	Role              string    `json:"role"`
	LastSeen          time.Time `json:"lastSeen"`
	LastMessageText   *string   `json:"lastMessageText,omitempty"`
	LastMessageAuthor *int64    `json:"lastMessageAuthor,omitempty"`
	UnreadCount       int       `json:"unreadCount"`
	UnreadCapped      bool      `json:"unreadCapped"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ChatSeenSnapshotResponse reports member count and the earliest watermark of the other members
type ChatSeenSnapshotResponse struct {
	ChatID           int64      `json:"chatId"`
	TotalChatMembers int        `json:"totalChatMembers"`
	MinLastSeen      *time.Time `json:"minLastSeen"`
}

// MessageSeenResponse reports whether every other member has read past a message
type MessageSeenResponse struct {
	ChatID       int64 `json:"chatId"`
	MessageID    int64 `json:"messageId"`
	SeenByOthers bool  `json:"seenByOthers"`
}

// MarkSeenResponse is returned when the caller touches their watermark
type MarkSeenResponse struct {
	ChatID   int64     `json:"chatId"`
	LastSeen time.Time `json:"lastSeen"`
	Advanced bool      `json:"advanced"`
}

// ChatMemberResponse represents one member of a chat
type ChatMemberResponse struct {
	UserID   int64              `json:"userId"`
	Role     string             `json:"role"`
	LastSeen time.Time          `json:"lastSeen"`
	User     *UserBasicResponse `json:"user,omitempty"`
}

// PresenceResponse lists users currently viewing a chat
type PresenceResponse struct {
	ChatID  int64   `json:"chatId"`
	UserIDs []int64 `json:"userIds"`
}

// ChatSeenEvent is the chat_seen push payload
type ChatSeenEvent struct {
	UserID   int64     `json:"userId"`
	ChatID   int64     `json:"chatId"`
	LastSeen time.Time `json:"lastSeen"`
}

// ToChatResponse converts a chat model to its public view
func ToChatResponse(chat *models.Chat) ChatResponse {
	return ChatResponse{
		ID:                chat.ID,
		Kind:              string(chat.Kind),
		Name:              chat.Name,
		AvatarURL:         chat.AvatarURL,
		Bio:               chat.Bio,
		Members:           chat.Members,
		LastMessageText:   chat.LastMessageText,
		LastMessageAuthor: chat.LastMessageAuthor,
		CreatedAt:         chat.CreatedAt,
		UpdatedAt:         chat.UpdatedAt,
	}
}

// ToChatMemberResponse converts a membership and optional user to a response
func ToChatMemberResponse(m *models.ChatMember, u *models.User) ChatMemberResponse {
	return ChatMemberResponse{
		UserID:   m.UserID,
		Role:     string(m.Role),
		LastSeen: m.LastSeen,
		User:     ToUserBasicResponse(u),
	}
}
