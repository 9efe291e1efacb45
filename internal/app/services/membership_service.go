package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
)

// MembershipService is the membership store: who belongs to a chat, with which role, and how
// far each member has read.
type MembershipService struct {
	chats      repositories.IChatRepository
	members    repositories.IChatMemberRepository
	dispatcher *Dispatcher
	clock      Clock
	logger     zerolog.Logger
}

// NewMembershipService creates a new MembershipService
func NewMembershipService(repos *repositories.Repositories, dispatcher *Dispatcher, clock Clock, logger zerolog.Logger) *MembershipService {
	return &MembershipService{
		chats:      repos.Chats,
		members:    repos.Members,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// MemberLookup answers membership checks straight from the store. The websocket router uses it
// to re-validate room joins.
type MemberLookup struct {
	Members repositories.IChatMemberRepository
}

// IsMember reports whether the user currently belongs to the chat. A missing chat or
// membership is not an error.
func (l MemberLookup) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	_, err := l.Members.Get(ctx, chatID, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperrors.ErrResourceNotFound) {
		return false, nil
	}
	return false, err
}

// IsMember reports whether the user currently belongs to the chat
func (s *MembershipService) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	return MemberLookup{Members: s.members}.IsMember(ctx, chatID, userID)
}

// Role returns the user's role in the chat, or an empty role when they are not a member
func (s *MembershipService) Role(ctx context.Context, chatID, userID int64) (models.MemberRole, error) {
	m, err := s.members.Get(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrResourceNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.Role, nil
}

// Require returns the caller's membership. A missing chat is NotFound; an existing chat the
// caller does not belong to is Forbidden.
func (s *MembershipService) Require(ctx context.Context, chatID, userID int64) (*models.ChatMember, error) {
	if m := membershipFromContext(ctx, chatID, userID); m != nil {
		return m, nil
	}

	m, err := s.members.Get(ctx, chatID, userID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, apperrors.ErrResourceNotFound) {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return nil, err
	}
	return nil, apperrors.ErrNotChatMember
}

// RequirePoster returns the caller's membership if their role may post messages
func (s *MembershipService) RequirePoster(ctx context.Context, chatID, userID int64) (*models.ChatMember, error) {
	m, err := s.Require(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !m.Role.CanPost() {
		return nil, apperrors.NewForbiddenError("your role cannot post in this chat")
	}
	return m, nil
}

// Members lists the chat's current members
func (s *MembershipService) Members(ctx context.Context, chatID int64) ([]*models.ChatMember, error) {
	return s.members.ListByChat(ctx, chatID)
}

// Add puts userID into a group chat. Only admins may add members.
func (s *MembershipService) Add(ctx context.Context, actorID, chatID, userID int64, role models.MemberRole) (*models.ChatMember, error) {
	actor, err := s.Require(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin {
		return nil, apperrors.NewForbiddenError("only chat admins can add members")
	}

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.IsDirect() {
		return nil, apperrors.NewValidationError("direct chats have a fixed member pair")
	}

	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid member role")
	}

	now := s.clock()
	member := &models.ChatMember{
		ChatID:    chatID,
		UserID:    userID,
		Role:      role,
		LastSeen:  now,
		CreatedAt: now,
	}
	if err := s.members.Add(ctx, member); err != nil {
		return nil, err
	}

	if err := s.chats.Touch(ctx, chatID, now); err != nil {
		s.logger.Warn().Err(err).Int64("chatID", chatID).Msg("Failed to bump chat after member add")
	} else if now.After(chat.UpdatedAt) {
		chat.UpdatedAt = now
	}

	s.logger.Info().
		Int64("chatID", chatID).
		Int64("userID", userID).
		Int64("actorID", actorID).
		Str("role", string(role)).
		Msg("Member added to chat")

	s.dispatcher.NotifyNewChat(ctx, chat, []int64{userID}, actorID)
	return member, nil
}

// Remove takes userID out of a group chat. Admins may remove anyone; members may remove
// themselves. A removed member no longer counts for seen checks or fan-out.
func (s *MembershipService) Remove(ctx context.Context, actorID, chatID, userID int64) error {
	actor, err := s.Require(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if actorID != userID && actor.Role != models.RoleAdmin {
		return apperrors.NewForbiddenError("only chat admins can remove other members")
	}

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.IsDirect() {
		return apperrors.NewValidationError("direct chats have a fixed member pair")
	}

	if err := s.members.Remove(ctx, chatID, userID); err != nil {
		return err
	}
	if err := s.chats.Touch(ctx, chatID, s.clock()); err != nil {
		s.logger.Warn().Err(err).Int64("chatID", chatID).Msg("Failed to bump chat after member removal")
	}

	s.logger.Info().
		Int64("chatID", chatID).
		Int64("userID", userID).
		Int64("actorID", actorID).
		Msg("Member removed from chat")
	return nil
}

// TouchLastSeen advances the member's watermark to at. It never moves backwards and reports
// whether the stored value changed.
func (s *MembershipService) TouchLastSeen(ctx context.Context, chatID, userID int64, at time.Time) (bool, error) {
	advanced, err := s.members.TouchLastSeen(ctx, chatID, userID, at)
	if err != nil {
		return false, fmt.Errorf("failed to update last seen: %w", err)
	}
	return advanced, nil
}

// MinLastSeen returns the earliest watermark among members other than excludeUserID and the
// number of such members.
func (s *MembershipService) MinLastSeen(ctx context.Context, chatID, excludeUserID int64) (*time.Time, int, error) {
	return s.members.MinLastSeen(ctx, chatID, excludeUserID)
}
