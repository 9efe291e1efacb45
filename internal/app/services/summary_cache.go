package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
)

// SummaryCache keeps the chat's denormalized last-message fields and assembles a user's chat
// list from memberships, chats, peers and unread counts.
type SummaryCache struct {
	chats   repositories.IChatRepository
	members repositories.IChatMemberRepository
	users   repositories.IUserRepository
	unread  *UnreadCalculator
	logger  zerolog.Logger
}

// NewSummaryCache creates a new SummaryCache
func NewSummaryCache(repos *repositories.Repositories, unread *UnreadCalculator, logger zerolog.Logger) *SummaryCache {
	return &SummaryCache{
		chats:   repos.Chats,
		members: repos.Members,
		users:   repos.Users,
		unread:  unread,
		logger:  logger,
	}
}

// UpdateOnNewMessage records msg as the chat's last message. A concurrent append that already
// stored a later message wins; the summary never moves back to an older one.
func (s *SummaryCache) UpdateOnNewMessage(ctx context.Context, msg *models.Message) error {
	changed, err := s.chats.UpdateSummary(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to update chat summary: %w", err)
	}
	if !changed {
		s.logger.Debug().
			Int64("chatID", msg.ChatID).
			Int64("messageID", msg.ID).
			Msg("Chat summary already newer, skipped")
	}
	return nil
}

// Summaries returns one row per chat the user belongs to, most recently updated first
func (s *SummaryCache) Summaries(ctx context.Context, userID int64) ([]dto.ChatSummaryResponse, error) {
	memberships, err := s.members.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	if len(memberships) == 0 {
		return []dto.ChatSummaryResponse{}, nil
	}
	return s.assemble(ctx, userID, memberships)
}

// Summary returns the user's summary row for a single chat
func (s *SummaryCache) Summary(ctx context.Context, member *models.ChatMember) (*dto.ChatSummaryResponse, error) {
	rows, err := s.assemble(ctx, member.UserID, []*models.ChatMember{member})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("chat %d vanished while building its summary", member.ChatID)
	}
	return &rows[0], nil
}

func (s *SummaryCache) assemble(ctx context.Context, userID int64, memberships []*models.ChatMember) ([]dto.ChatSummaryResponse, error) {
	chatIDs := make([]int64, 0, len(memberships))
	for _, m := range memberships {
		chatIDs = append(chatIDs, m.ChatID)
	}
	chats, err := s.chats.GetByIDs(ctx, chatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}

	var peerIDs []int64
	for _, chat := range chats {
		if peer, ok := chat.OtherMember(userID); ok && chat.IsDirect() {
			peerIDs = append(peerIDs, peer)
		}
	}
	peers := map[int64]*models.User{}
	if len(peerIDs) > 0 {
		if peers, err = s.users.GetByIDs(ctx, peerIDs); err != nil {
			return nil, fmt.Errorf("failed to load chat peers: %w", err)
		}
	}

	rows := make([]dto.ChatSummaryResponse, 0, len(memberships))
	for _, m := range memberships {
		chat, ok := chats[m.ChatID]
		if !ok {
			continue
		}

		unread, err := s.unread.UnreadSince(ctx, chat.ID, userID, m.LastSeen)
		if err != nil {
			return nil, err
		}

		row := dto.ChatSummaryResponse{
			ID:                chat.ID,
			Kind:              string(chat.Kind),
			Role:              string(m.Role),
			LastSeen:          m.LastSeen,
			LastMessageText:   chat.LastMessageText,
			LastMessageAuthor: chat.LastMessageAuthor,
			UnreadCount:       unread.Count,
			UnreadCapped:      unread.Capped,
			UpdatedAt:         chat.UpdatedAt,
		}
		if chat.IsDirect() {
			if peerID, ok := chat.OtherMember(userID); ok {
				row.PeerID = &peerID
				if peer := peers[peerID]; peer != nil {
					row.Name = peer.Name
					row.AvatarURL = peer.AvatarURL
					row.Bio = peer.Bio
				}
			}
		} else {
			if chat.Name != nil {
				row.Name = *chat.Name
			}
			row.AvatarURL = chat.AvatarURL
			row.Bio = chat.Bio
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UpdatedAt.Equal(rows[j].UpdatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})
	return rows, nil
}
