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
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/dberrors"
)

var messageColumns = []string{"id", "chat_id", "author_id", "type", "text", "created_at"}

// MessageRepository handles database operations for chat messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message into the database
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	sql, args, err := squirrel.Insert("messages").
		Columns("chat_id", "author_id", "type", "text", "created_at").
		Values(msg.ChatID, msg.AuthorID, msg.Type, msg.Text, msg.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building SQL: %w", err)
	}

	if err := r.db.QueryRow(ctx, sql, args...).Scan(&msg.ID); err != nil {
		return messageInsertError(err)
	}
	return nil
}

func messageInsertError(err error) error {
	if dberrors.IsForeignKeyViolation(err) {
		return apperrors.ErrChatNotFound
	}
	return fmt.Errorf("error creating message: %w", err)
}

// GetByID retrieves a message by its ID
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	sql, args, err := squirrel.Select(messageColumns...).
		From("messages").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	msg, err := scanMessage(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, fmt.Errorf("error retrieving message: %w", err)
	}
	return msg, nil
}

// Page returns messages in (created_at, id) descending order. The cursor comparison is
// row-wise so equal timestamps are neither skipped nor repeated.
func (r *MessageRepository) Page(ctx context.Context, chatID int64, before *MessageCursor, limit int) ([]*models.Message, error) {
	sql, args, err := pageQuery(chatID, before, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountSince counts at most limit messages newer than since from authors other than excludeAuthor
func (r *MessageRepository) CountSince(ctx context.Context, chatID int64, since time.Time, excludeAuthor int64, limit int) (int, error) {
	sql, args, err := countSinceQuery(chatID, since, excludeAuthor, limit).ToSql()
	if err != nil {
		return 0, fmt.Errorf("error building SQL: %w", err)
	}

	var count int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting messages: %w", err)
	}
	return count, nil
}

func pageQuery(chatID int64, before *MessageCursor, limit int) squirrel.SelectBuilder {
	query := squirrel.Select(messageColumns...).
		From("messages").
		Where(squirrel.Eq{"chat_id": chatID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	if before != nil {
		query = query.Where("(created_at, id) < (?, ?)", before.CreatedAt, before.ID)
	}
	return query
}

// countSinceQuery stops scanning after limit rows; callers pass cap+1 to detect overflow
func countSinceQuery(chatID int64, since time.Time, excludeAuthor int64, limit int) squirrel.SelectBuilder {
	inner := squirrel.Select("1").
		From("messages").
		Where(squirrel.Eq{"chat_id": chatID}).
		Where(squirrel.Gt{"created_at": since}).
		Where(squirrel.NotEq{"author_id": excludeAuthor}).
		Limit(uint64(limit))

	return squirrel.Select("COUNT(*)").
		FromSelect(inner, "recent").
		PlaceholderFormat(squirrel.Dollar)
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.ChatID, &m.AuthorID, &m.Type, &m.Text, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
