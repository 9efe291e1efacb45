package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/repositories"
)

// DefaultUnreadCap bounds unread counting per chat
const DefaultUnreadCap = 100

// UnreadCount is a capped unread count. Count never exceeds the cap; Capped is set when more
// unread messages exist than were counted.
type UnreadCount struct {
	Count  int
	Capped bool
}

// UnreadCalculator derives unread counts and read receipts from member watermarks. Nothing it
// computes is stored.
type UnreadCalculator struct {
	members  repositories.IChatMemberRepository
	messages repositories.IMessageRepository
	cap      int
}

// NewUnreadCalculator creates a new UnreadCalculator
func NewUnreadCalculator(repos *repositories.Repositories, unreadCap int) *UnreadCalculator {
	if unreadCap < 1 {
		unreadCap = DefaultUnreadCap
	}
	return &UnreadCalculator{
		members:  repos.Members,
		messages: repos.Messages,
		cap:      unreadCap,
	}
}

// UnreadCount counts the viewer's unread messages in the chat
func (u *UnreadCalculator) UnreadCount(ctx context.Context, chatID, viewerID int64) (UnreadCount, error) {
	member, err := u.members.Get(ctx, chatID, viewerID)
	if err != nil {
		return UnreadCount{}, err
	}
	return u.UnreadSince(ctx, chatID, viewerID, member.LastSeen)
}

// UnreadSince counts messages created strictly after lastSeen. The viewer's own messages never
// count as unread.
func (u *UnreadCalculator) UnreadSince(ctx context.Context, chatID, viewerID int64, lastSeen time.Time) (UnreadCount, error) {
	n, err := u.messages.CountSince(ctx, chatID, lastSeen, viewerID, u.cap+1)
	if err != nil {
		return UnreadCount{}, fmt.Errorf("failed to count unread messages: %w", err)
	}
	if n > u.cap {
		return UnreadCount{Count: u.cap, Capped: true}, nil
	}
	return UnreadCount{Count: n}, nil
}

// IsSeenByOthers reports whether every member other than the author has read past the message.
// With no other members the message counts as unseen.
func (u *UnreadCalculator) IsSeenByOthers(ctx context.Context, msg *models.Message) (bool, error) {
	earliest, others, err := u.members.MinLastSeen(ctx, msg.ChatID, msg.AuthorID)
	if err != nil {
		return false, fmt.Errorf("failed to load watermarks: %w", err)
	}
	if others == 0 || earliest == nil {
		return false, nil
	}
	return earliest.After(msg.CreatedAt), nil
}

// SeenSnapshot returns the earliest watermark among the members other than viewerID and the
// chat's total member count, the viewer included.
func (u *UnreadCalculator) SeenSnapshot(ctx context.Context, chatID, viewerID int64) (*time.Time, int, error) {
	earliest, others, err := u.members.MinLastSeen(ctx, chatID, viewerID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load watermarks: %w", err)
	}
	return earliest, others + 1, nil
}
