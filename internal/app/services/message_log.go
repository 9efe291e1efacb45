package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/metrics"
)

// Message log defaults
const (
	DefaultMaxMessageLength = 500
	DefaultPageSize         = 25
	MaxPageSize             = 100
)

// MessageLog appends to and pages the per-chat message log. Appending is one ordered
// operation: insert, update the chat summary, fan out. The author's watermark only moves when
// they view the chat.
type MessageLog struct {
	messages   repositories.IMessageRepository
	users      repositories.IUserRepository
	summary    *SummaryCache
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	clock      Clock
	maxLength  int
	logger     zerolog.Logger
}

// NewMessageLog creates a new MessageLog
func NewMessageLog(
	repos *repositories.Repositories,
	summary *SummaryCache,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	clock Clock,
	maxLength int,
	logger zerolog.Logger,
) *MessageLog {
	if maxLength < 1 {
		maxLength = DefaultMaxMessageLength
	}
	return &MessageLog{
		messages:   repos.Messages,
		users:      repos.Users,
		summary:    summary,
		dispatcher: dispatcher,
		metrics:    m,
		clock:      clock,
		maxLength:  maxLength,
		logger:     logger,
	}
}

// Validate checks a message body against the type and size rules
func (l *MessageLog) Validate(msgType models.MessageType, text string) error {
	if !msgType.Valid() {
		return apperrors.NewValidationError("invalid message type")
	}
	if utf8.RuneCountInString(text) > l.maxLength {
		return apperrors.NewValidationError(fmt.Sprintf("message text exceeds %d characters", l.maxLength))
	}
	if msgType == models.MessageTypeText && strings.TrimSpace(text) == "" {
		return apperrors.NewValidationError("message text is required")
	}
	return nil
}

// Append stores a message from authorID. The caller has already checked that the author may
// post. Once the insert succeeds the message stays even if a later step fails.
func (l *MessageLog) Append(ctx context.Context, chatID, authorID int64, msgType models.MessageType, text string) (*models.Message, error) {
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if err := l.Validate(msgType, text); err != nil {
		return nil, err
	}

	author, err := l.users.GetByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	// In-flight writes complete even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	msg := &models.Message{
		ChatID:    chatID,
		AuthorID:  authorID,
		Type:      msgType,
		Text:      text,
		CreatedAt: l.clock(),
	}
	if err := l.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	msg.Author = author
	l.metrics.MessageAppended()

	if err := l.summary.UpdateOnNewMessage(ctx, msg); err != nil {
		l.logger.Error().Err(err).Int64("chatID", chatID).Int64("messageID", msg.ID).Msg("Message stored but summary update failed")
		return nil, err
	}

	l.logger.Debug().
		Int64("chatID", chatID).
		Int64("messageID", msg.ID).
		Int64("authorID", authorID).
		Msg("Message appended")

	l.dispatcher.NotifyNewMessage(ctx, msg, authorID)
	return msg, nil
}

// Page returns up to limit messages older than the before cursor, newest first, with authors
// attached. hasMore reports whether older messages remain.
func (l *MessageLog) Page(ctx context.Context, chatID int64, before *int64, limit int) ([]*models.Message, bool, error) {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var cursor *repositories.MessageCursor
	if before != nil {
		pivot, err := l.messages.GetByID(ctx, *before)
		if err != nil {
			return nil, false, err
		}
		if pivot.ChatID != chatID {
			return nil, false, apperrors.ErrMessageNotFound
		}
		cursor = &repositories.MessageCursor{CreatedAt: pivot.CreatedAt, ID: pivot.ID}
	}

	page, err := l.messages.Page(ctx, chatID, cursor, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to page messages: %w", err)
	}
	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}

	if err := l.attachAuthors(ctx, page); err != nil {
		return nil, false, err
	}
	return page, hasMore, nil
}

// Get returns one message of the chat
func (l *MessageLog) Get(ctx context.Context, chatID, messageID int64) (*models.Message, error) {
	msg, err := l.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, apperrors.ErrMessageNotFound
	}
	return msg, nil
}

func (l *MessageLog) attachAuthors(ctx context.Context, page []*models.Message) error {
	if len(page) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(page))
	for _, m := range page {
		ids = append(ids, m.AuthorID)
	}
	authors, err := l.users.GetByIDs(ctx, uniqueIDs(ids, 0))
	if err != nil {
		return fmt.Errorf("failed to load message authors: %w", err)
	}
	for _, m := range page {
		m.Author = authors[m.AuthorID]
	}
	return nil
}
