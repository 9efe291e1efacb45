package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/db"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/dberrors"
)

var chatColumns = []string{
	"id", "kind", "name", "avatar_url", "bio", "members",
	"last_message_id", "last_message_text", "last_message_author", "last_message_at",
	"created_at", "updated_at",
}

// ChatRepository handles database operations for chats
type ChatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository creates a new ChatRepository
func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create inserts a chat and its initial members in one transaction
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat, members []*models.ChatMember) error {
	var directKey *string
	if chat.IsDirect() {
		if len(chat.Members) != 2 {
			return apperrors.NewValidationError("direct chat requires exactly two members")
		}
		key := models.DirectKey(chat.Members[0], chat.Members[1])
		directKey = &key
	}

	return db.WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		sql, args, err := squirrel.Insert("chats").
			Columns("kind", "name", "avatar_url", "bio", "members", "direct_key", "created_at", "updated_at").
			Values(chat.Kind, chat.Name, chat.AvatarURL, chat.Bio, chat.Members, directKey, chat.CreatedAt, chat.UpdatedAt).
			Suffix("RETURNING id").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("error building SQL: %w", err)
		}

		if err := tx.QueryRow(ctx, sql, args...).Scan(&chat.ID); err != nil {
			return chatInsertError(err)
		}

		for _, m := range members {
			m.ChatID = chat.ID
			if err := insertMember(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// chatInsertError turns the direct pair unique index into Conflict
func chatInsertError(err error) error {
	if dberrors.IsDuplicateConstraintError(err, "chats_direct_key_key") {
		return apperrors.NewConflictError("direct chat already exists")
	}
	return fmt.Errorf("error creating chat: %w", err)
}

// GetByID retrieves a chat by ID
func (r *ChatRepository) GetByID(ctx context.Context, id int64) (*models.Chat, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// FindDirect retrieves the direct chat between two users
func (r *ChatRepository) FindDirect(ctx context.Context, userA, userB int64) (*models.Chat, error) {
	return r.getOne(ctx, squirrel.Eq{"direct_key": models.DirectKey(userA, userB)})
}

func (r *ChatRepository) getOne(ctx context.Context, pred squirrel.Eq) (*models.Chat, error) {
	sql, args, err := squirrel.Select(chatColumns...).
		From("chats").
		Where(pred).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	chat, err := scanChat(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrChatNotFound
		}
		return nil, fmt.Errorf("error retrieving chat: %w", err)
	}
	return chat, nil
}

// GetByIDs retrieves chats keyed by ID
func (r *ChatRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.Chat, error) {
	chats := make(map[int64]*models.Chat, len(ids))
	if len(ids) == 0 {
		return chats, nil
	}

	sql, args, err := squirrel.Select(chatColumns...).
		From("chats").
		Where(squirrel.Eq{"id": ids}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		chats[chat.ID] = chat
	}
	return chats, rows.Err()
}

// UpdateSummary is a single-row conditional update, so concurrent appends converge on the
// newest message in (created_at, id) order.
func (r *ChatRepository) UpdateSummary(ctx context.Context, msg *models.Message) (bool, error) {
	sql, args, err := updateSummaryQuery(msg).ToSql()
	if err != nil {
		return false, fmt.Errorf("error building SQL: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("error updating chat summary: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func updateSummaryQuery(msg *models.Message) squirrel.UpdateBuilder {
	return squirrel.Update("chats").
		Set("last_message_id", msg.ID).
		Set("last_message_text", msg.Text).
		Set("last_message_author", msg.AuthorID).
		Set("last_message_at", msg.CreatedAt).
		Set("updated_at", squirrel.Expr("GREATEST(updated_at, ?)", msg.CreatedAt)).
		Where(squirrel.Eq{"id": msg.ChatID}).
		Where(squirrel.Or{
			squirrel.Eq{"last_message_at": nil},
			squirrel.Expr("(last_message_at, last_message_id) < (?, ?)", msg.CreatedAt, msg.ID),
		}).
		PlaceholderFormat(squirrel.Dollar)
}

// Touch bumps the chat's updated_at
func (r *ChatRepository) Touch(ctx context.Context, chatID int64, at time.Time) error {
	sql, args, err := squirrel.Update("chats").
		Set("updated_at", squirrel.Expr("GREATEST(updated_at, ?)", at)).
		Where(squirrel.Eq{"id": chatID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building SQL: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error touching chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrChatNotFound
	}
	return nil
}

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	err := row.Scan(
		&c.ID, &c.Kind, &c.Name, &c.AvatarURL, &c.Bio, &c.Members,
		&c.LastMessageID, &c.LastMessageText, &c.LastMessageAuthor, &c.LastMessageAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
