package services

import (
	"context"
	"time"

	"github.com/yigit/chatsphere/internal/app/models"
)

// Services defined in this package:
// - AuthService: registration, login and credential authentication
// - UserService: user lookup and listing
// - MembershipService: the membership store (roles, watermarks, member changes)
// - MessageLog: appends messages and pages the per-chat log
// - SummaryCache: denormalized last-message fields and the per-user chat list
// - UnreadCalculator: unread counts and seen-by-others checks
// - Dispatcher: fan-out of new_msg, new_chat and chat_seen events
// - ChatService: chat use-cases consumed by the REST layer

// Clock returns the current time
type Clock func() time.Time

// SystemClock is the default clock. Times are truncated to the storage resolution so values
// read back from Postgres compare equal to the ones written.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type membershipKey struct{}

// WithMembership attaches an already resolved membership to ctx so later checks for the same
// chat and user skip the store.
func WithMembership(ctx context.Context, m *models.ChatMember) context.Context {
	return context.WithValue(ctx, membershipKey{}, m)
}

func membershipFromContext(ctx context.Context, chatID, userID int64) *models.ChatMember {
	m, ok := ctx.Value(membershipKey{}).(*models.ChatMember)
	if !ok || m == nil || m.ChatID != chatID || m.UserID != userID {
		return nil
	}
	return m
}

func uniqueIDs(ids []int64, exclude int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
