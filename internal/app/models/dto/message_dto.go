package dto

import (
	"time"

	"github.com/yigit/chatsphere/internal/app/models"
)

// CreateMessageRequest represents data for posting a message. Type defaults to text.
type CreateMessageRequest struct {
	Type string `json:"type" binding:"omitempty,oneof=text image video document"`
	Text string `json:"text"`
}

// GetMessagesRequest represents cursor pagination parameters
type GetMessagesRequest struct {
	Before *int64 `form:"before" binding:"omitempty,gt=0"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

// MessageResponse represents a stored message with minimal author info
type MessageResponse struct {
	ID        int64              `json:"id"`
	ChatID    int64              `json:"chatId"`
	AuthorID  int64              `json:"authorId"`
	Type      string             `json:"type"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"createdAt"`
	Author    *UserBasicResponse `json:"author,omitempty"`
}

// MessagePageResponse is one page of a chat's log, newest first. NextCursor is the id to pass
// as before for the following page and is absent on the last page.
type MessagePageResponse struct {
	Messages   []MessageResponse `json:"messages"`
	NextCursor *int64            `json:"nextCursor,omitempty"`
}

// ToMessageResponse converts a message model to a response
func ToMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		AuthorID:  m.AuthorID,
		Type:      string(m.Type),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Author:    ToUserBasicResponse(m.Author),
	}
}

// ToMessagePageResponse converts a page of messages. hasMore tells whether older messages exist.
func ToMessagePageResponse(messages []*models.Message, hasMore bool) MessagePageResponse {
	resp := MessagePageResponse{Messages: make([]MessageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, ToMessageResponse(m))
	}
	if hasMore && len(messages) > 0 {
		cursor := messages[len(messages)-1].ID
		resp.NextCursor = &cursor
	}
	return resp
}
