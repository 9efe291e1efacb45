package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
)

// PresenceReader lists the users currently viewing a chat
type PresenceReader interface {
	Viewers(ctx context.Context, chatID int64) ([]int64, error)
}

// ChatService defines the interface for chat operations
type ChatService interface {
	CreateChat(ctx context.Context, creatorID int64, req *dto.CreateChatRequest) (*dto.ChatResponse, error)
	ListChats(ctx context.Context, userID int64) ([]dto.ChatSummaryResponse, error)
	GetChat(ctx context.Context, userID, chatID int64) (*dto.ChatSummaryResponse, error)
	PostMessage(ctx context.Context, userID, chatID int64, req *dto.CreateMessageRequest) (*dto.MessageResponse, error)
	GetMessages(ctx context.Context, userID, chatID int64, req *dto.GetMessagesRequest) (*dto.MessagePageResponse, error)
	GetSeenSnapshot(ctx context.Context, userID, chatID int64) (*dto.ChatSeenSnapshotResponse, error)
	GetMessageSeen(ctx context.Context, userID, chatID, messageID int64) (*dto.MessageSeenResponse, error)
	MarkSeen(ctx context.Context, userID, chatID int64) (*dto.MarkSeenResponse, error)
	ListMembers(ctx context.Context, userID, chatID int64) ([]dto.ChatMemberResponse, error)
	AddMember(ctx context.Context, actorID, chatID int64, req *dto.AddMemberRequest) (*dto.ChatMemberResponse, error)
	RemoveMember(ctx context.Context, actorID, chatID, userID int64) error
	GetPresence(ctx context.Context, userID, chatID int64) (*dto.PresenceResponse, error)
}

// chatServiceImpl implements ChatService
type chatServiceImpl struct {
	chats      repositories.IChatRepository
	users      repositories.IUserRepository
	membership *MembershipService
	messages   *MessageLog
	summary    *SummaryCache
	unread     *UnreadCalculator
	dispatcher *Dispatcher
	presence   PresenceReader
	clock      Clock
	pageSize   int
	maxPage    int
	logger     zerolog.Logger
}

// ChatServiceDeps groups the collaborators of the chat service
type ChatServiceDeps struct {
	Repos      *repositories.Repositories
	Membership *MembershipService
	Messages   *MessageLog
	Summary    *SummaryCache
	Unread     *UnreadCalculator
	Dispatcher *Dispatcher
	Presence   PresenceReader
	Clock      Clock
	PageSize   int
	// MaxPageSize caps client supplied limits; it never exceeds the log's MaxPageSize
	MaxPageSize int
}

// NewChatService creates a new ChatService
func NewChatService(deps ChatServiceDeps, logger zerolog.Logger) ChatService {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.MaxPageSize < 1 || deps.MaxPageSize > MaxPageSize {
		deps.MaxPageSize = MaxPageSize
	}
	if deps.PageSize < 1 || deps.PageSize > deps.MaxPageSize {
		deps.PageSize = min(DefaultPageSize, deps.MaxPageSize)
	}
	return &chatServiceImpl{
		chats:      deps.Repos.Chats,
		users:      deps.Repos.Users,
		membership: deps.Membership,
		messages:   deps.Messages,
		summary:    deps.Summary,
		unread:     deps.Unread,
		dispatcher: deps.Dispatcher,
		presence:   deps.Presence,
		clock:      deps.Clock,
		pageSize:   deps.PageSize,
		maxPage:    deps.MaxPageSize,
		logger:     logger,
	}
}

// CreateChat creates a direct or group chat. The creator becomes admin and the listed users
// become members. A direct chat with the same peer must not exist yet.
func (s *chatServiceImpl) CreateChat(ctx context.Context, creatorID int64, req *dto.CreateChatRequest) (*dto.ChatResponse, error) {
	kind := models.ChatKind(req.Kind)
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("chat kind must be direct or group")
	}

	others := uniqueIDs(req.Members, creatorID)
	chat := &models.Chat{Kind: kind}

	switch kind {
	case models.ChatKindDirect:
		if len(others) != 1 {
			return nil, apperrors.NewValidationError("a direct chat needs exactly one other member")
		}
		chat.Members = []int64{min(creatorID, others[0]), max(creatorID, others[0])}
	case models.ChatKindGroup:
		if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
			return nil, apperrors.NewValidationError("group chats require a name")
		}
		if len(others) < 2 {
			return nil, apperrors.NewValidationError("a group chat needs at least two other members")
		}
		name := strings.TrimSpace(*req.Name)
		chat.Name = &name
		chat.AvatarURL = req.AvatarURL
		chat.Bio = req.Bio
	}

	users, err := s.users.GetByIDs(ctx, append([]int64{creatorID}, others...))
	if err != nil {
		return nil, fmt.Errorf("failed to load chat members: %w", err)
	}
	if _, ok := users[creatorID]; !ok {
		return nil, apperrors.ErrUserNotFound
	}
	for _, id := range others {
		if _, ok := users[id]; !ok {
			return nil, apperrors.NewResourceNotFoundError(fmt.Sprintf("user %d not found", id))
		}
	}

	now := s.clock()
	chat.CreatedAt, chat.UpdatedAt = now, now

	memberIDs := append([]int64{creatorID}, others...)
	members := make([]*models.ChatMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleAdmin
		}
		members = append(members, &models.ChatMember{
			UserID:    id,
			Role:      role,
			LastSeen:  now,
			CreatedAt: now,
		})
	}

	if err := s.chats.Create(ctx, chat, members); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("chatID", chat.ID).
		Str("kind", string(chat.Kind)).
		Int64("creatorID", creatorID).
		Int("members", len(memberIDs)).
		Msg("Chat created")

	s.dispatcher.NotifyNewChat(ctx, chat, memberIDs, creatorID)

	resp := dto.ToChatResponse(chat)
	return &resp, nil
}

// ListChats returns the caller's chat list
func (s *chatServiceImpl) ListChats(ctx context.Context, userID int64) ([]dto.ChatSummaryResponse, error) {
	return s.summary.Summaries(ctx, userID)
}

// GetChat returns the caller's summary row for one chat
func (s *chatServiceImpl) GetChat(ctx context.Context, userID, chatID int64) (*dto.ChatSummaryResponse, error) {
	member, err := s.membership.Require(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return s.summary.Summary(ctx, member)
}

// PostMessage appends a message from the caller
func (s *chatServiceImpl) PostMessage(ctx context.Context, userID, chatID int64, req *dto.CreateMessageRequest) (*dto.MessageResponse, error) {
	if _, err := s.membership.RequirePoster(ctx, chatID, userID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Append(ctx, chatID, userID, models.MessageType(req.Type), req.Text)
	if err != nil {
		return nil, err
	}
	resp := dto.ToMessageResponse(msg)
	return &resp, nil
}

// GetMessages returns one page of the chat's log and marks the chat as seen by the caller
func (s *chatServiceImpl) GetMessages(ctx context.Context, userID, chatID int64, req *dto.GetMessagesRequest) (*dto.MessagePageResponse, error) {
	member, err := s.membership.Require(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !member.Role.CanRead() {
		return nil, apperrors.NewForbiddenError("your role cannot read this chat")
	}

	limit := req.Limit
	if limit < 1 {
		limit = s.pageSize
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}
	page, hasMore, err := s.messages.Page(ctx, chatID, req.Before, limit)
	if err != nil {
		return nil, err
	}

	if _, err := s.markSeen(ctx, chatID, userID); err != nil {
		s.logger.Warn().Err(err).Int64("chatID", chatID).Int64("userID", userID).Msg("Failed to mark chat as seen")
	}

	resp := dto.ToMessagePageResponse(page, hasMore)
	return &resp, nil
}

// GetSeenSnapshot returns the member count and the earliest watermark of the other members
func (s *chatServiceImpl) GetSeenSnapshot(ctx context.Context, userID, chatID int64) (*dto.ChatSeenSnapshotResponse, error) {
	if _, err := s.membership.Require(ctx, chatID, userID); err != nil {
		return nil, err
	}
	earliest, total, err := s.unread.SeenSnapshot(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return &dto.ChatSeenSnapshotResponse{
		ChatID:           chatID,
		TotalChatMembers: total,
		MinLastSeen:      earliest,
	}, nil
}

// GetMessageSeen reports whether every other member has read past the message
func (s *chatServiceImpl) GetMessageSeen(ctx context.Context, userID, chatID, messageID int64) (*dto.MessageSeenResponse, error) {
	if _, err := s.membership.Require(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msg, err := s.messages.Get(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}
	seen, err := s.unread.IsSeenByOthers(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &dto.MessageSeenResponse{
		ChatID:       chatID,
		MessageID:    messageID,
		SeenByOthers: seen,
	}, nil
}

// MarkSeen advances the caller's watermark to now
func (s *chatServiceImpl) MarkSeen(ctx context.Context, userID, chatID int64) (*dto.MarkSeenResponse, error) {
	if _, err := s.membership.Require(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.markSeen(ctx, chatID, userID)
}

func (s *chatServiceImpl) markSeen(ctx context.Context, chatID, userID int64) (*dto.MarkSeenResponse, error) {
	now := s.clock()
	advanced, err := s.membership.TouchLastSeen(context.WithoutCancel(ctx), chatID, userID, now)
	if err != nil {
		return nil, err
	}
	if advanced {
		s.dispatcher.NotifySeen(ctx, chatID, userID, now)
	}
	return &dto.MarkSeenResponse{ChatID: chatID, LastSeen: now, Advanced: advanced}, nil
}

// ListMembers lists the chat's members with basic user info
func (s *chatServiceImpl) ListMembers(ctx context.Context, userID, chatID int64) ([]dto.ChatMemberResponse, error) {
	if _, err := s.membership.Require(ctx, chatID, userID); err != nil {
		return nil, err
	}
	members, err := s.membership.Members(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load member users: %w", err)
	}

	resp := make([]dto.ChatMemberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, dto.ToChatMemberResponse(m, users[m.UserID]))
	}
	return resp, nil
}

// AddMember adds a user to a group chat
func (s *chatServiceImpl) AddMember(ctx context.Context, actorID, chatID int64, req *dto.AddMemberRequest) (*dto.ChatMemberResponse, error) {
	member, err := s.membership.Add(ctx, actorID, chatID, req.UserID, models.MemberRole(req.Role))
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("userID", req.UserID).Msg("Failed to load added member")
		user = nil
	}
	resp := dto.ToChatMemberResponse(member, user)
	return &resp, nil
}

// RemoveMember removes a user from a group chat
func (s *chatServiceImpl) RemoveMember(ctx context.Context, actorID, chatID, userID int64) error {
	return s.membership.Remove(ctx, actorID, chatID, userID)
}

// GetPresence lists the users viewing the chat right now
func (s *chatServiceImpl) GetPresence(ctx context.Context, userID, chatID int64) (*dto.PresenceResponse, error) {
	if _, err := s.membership.Require(ctx, chatID, userID); err != nil {
		return nil, err
	}
	viewers := []int64{}
	if s.presence != nil {
		ids, err := s.presence.Viewers(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("failed to read presence: %w", err)
		}
		viewers = append(viewers, ids...)
	}
	return &dto.PresenceResponse{ChatID: chatID, UserIDs: viewers}, nil
}
