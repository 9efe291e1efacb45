package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/chatsphere/internal/app/models"
)

// IUserRepository defines the interface for user-related storage operations
type IUserRepository interface {
	// Create inserts the user and fills ID. Fails with Conflict when the handle is taken.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	// GetByIDs batch loads users; unknown ids are absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error)
	List(ctx context.Context, search string, offset, limit int) ([]*models.User, int64, error)
}

// IChatRepository defines storage for chats and their denormalized summary fields
type IChatRepository interface {
	// Create inserts the chat together with its initial members. Direct chats are unique per
	// unordered pair; a second one fails with Conflict.
	Create(ctx context.Context, chat *models.Chat, members []*models.ChatMember) error
	GetByID(ctx context.Context, id int64) (*models.Chat, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.Chat, error)
	FindDirect(ctx context.Context, userA, userB int64) (*models.Chat, error)
	// UpdateSummary stores msg as the chat's last message unless a later message is already
	// recorded. Returns whether the summary changed.
	UpdateSummary(ctx context.Context, msg *models.Message) (bool, error)
	// Touch bumps updated_at, never backwards.
	Touch(ctx context.Context, chatID int64, at time.Time) error
}

// IChatMemberRepository defines the membership store
type IChatMemberRepository interface {
	// Add fails with Conflict for an existing (chat, user) pair and NotFound for a missing chat or user.
	Add(ctx context.Context, member *models.ChatMember) error
	// Get returns the membership or NotFound.
	Get(ctx context.Context, chatID, userID int64) (*models.ChatMember, error)
	ListByChat(ctx context.Context, chatID int64) ([]*models.ChatMember, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.ChatMember, error)
	Remove(ctx context.Context, chatID, userID int64) error
	// TouchLastSeen moves the watermark forward to at. Older timestamps are a no-op.
	TouchLastSeen(ctx context.Context, chatID, userID int64, at time.Time) (bool, error)
	// MinLastSeen returns the earliest watermark among members other than excludeUserID and how
	// many such members exist. The time is nil when there are none.
	MinLastSeen(ctx context.Context, chatID, excludeUserID int64) (*time.Time, int, error)
}

// MessageCursor is a position in a chat's (created_at, id) order
type MessageCursor struct {
	CreatedAt time.Time
	ID        int64
}

// IMessageRepository defines the append-only message log
type IMessageRepository interface {
	// Create appends msg; CreatedAt must be set by the caller. Fills ID.
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	// Page returns up to limit messages strictly older than before, newest first.
	Page(ctx context.Context, chatID int64, before *MessageCursor, limit int) ([]*models.Message, error)
	// CountSince counts messages with created_at strictly after since that were not written by
	// excludeAuthor, stopping at limit.
	CountSince(ctx context.Context, chatID int64, since time.Time, excludeAuthor int64, limit int) (int, error)
}

// Repositories holds all the repository instances
type Repositories struct {
	Users    IUserRepository
	Chats    IChatRepository
	Members  IChatMemberRepository
	Messages IMessageRepository
}

// NewRepositories initializes the Postgres backed repositories
func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(db),
		Chats:    NewChatRepository(db),
		Members:  NewChatMemberRepository(db),
		Messages: NewMessageRepository(db),
	}
}
