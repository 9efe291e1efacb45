package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/dberrors"
)

var memberColumns = []string{"chat_id", "user_id", "role", "last_seen", "created_at", "updated_at"}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ChatMemberRepository handles database operations for chat memberships
type ChatMemberRepository struct {
	db *pgxpool.Pool
}

// NewChatMemberRepository creates a new ChatMemberRepository
func NewChatMemberRepository(db *pgxpool.Pool) *ChatMemberRepository {
	return &ChatMemberRepository{db: db}
}

// Add inserts a membership
func (r *ChatMemberRepository) Add(ctx context.Context, member *models.ChatMember) error {
	return insertMember(ctx, r.db, member)
}

func insertMember(ctx context.Context, db execer, m *models.ChatMember) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.LastSeen
	}
	m.UpdatedAt = m.CreatedAt

	sql, args, err := squirrel.Insert("chat_members").
		Columns(memberColumns...).
		Values(m.ChatID, m.UserID, m.Role, m.LastSeen, m.CreatedAt, m.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building SQL: %w", err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return memberInsertError(err)
	}
	return nil
}

// memberInsertError maps a failed membership insert onto the error taxonomy
func memberInsertError(err error) error {
	if dberrors.IsDuplicateConstraintError(err, "chat_members_pkey") {
		return apperrors.NewConflictError("user is already a member of this chat")
	}
	if dberrors.IsForeignKeyViolation(err) {
		return apperrors.NewResourceNotFoundError("chat or user not found")
	}
	return fmt.Errorf("error adding chat member: %w", err)
}

// Get retrieves a single membership
func (r *ChatMemberRepository) Get(ctx context.Context, chatID, userID int64) (*models.ChatMember, error) {
	sql, args, err := squirrel.Select(memberColumns...).
		From("chat_members").
		Where(squirrel.Eq{"chat_id": chatID, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	m, err := scanMember(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewResourceNotFoundError("membership not found")
		}
		return nil, fmt.Errorf("error retrieving chat member: %w", err)
	}
	return m, nil
}

// ListByChat retrieves all members of a chat
func (r *ChatMemberRepository) ListByChat(ctx context.Context, chatID int64) ([]*models.ChatMember, error) {
	return r.list(ctx, squirrel.Select(memberColumns...).
		From("chat_members").
		Where(squirrel.Eq{"chat_id": chatID}).
		OrderBy("created_at ASC", "user_id ASC"))
}

// ListByUser retrieves all memberships of a user
func (r *ChatMemberRepository) ListByUser(ctx context.Context, userID int64) ([]*models.ChatMember, error) {
	return r.list(ctx, squirrel.Select(memberColumns...).
		From("chat_members").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("chat_id ASC"))
}

func (r *ChatMemberRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]*models.ChatMember, error) {
	sql, args, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var members []*models.ChatMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Remove deletes a membership
func (r *ChatMemberRepository) Remove(ctx context.Context, chatID, userID int64) error {
	sql, args, err := squirrel.Delete("chat_members").
		Where(squirrel.Eq{"chat_id": chatID, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building SQL: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error removing chat member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewResourceNotFoundError("membership not found")
	}
	return nil
}

// TouchLastSeen advances the watermark with a guarded single-row update
func (r *ChatMemberRepository) TouchLastSeen(ctx context.Context, chatID, userID int64, at time.Time) (bool, error) {
	sql, args, err := touchLastSeenQuery(chatID, userID, at).ToSql()
	if err != nil {
		return false, fmt.Errorf("error building SQL: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("error touching last seen: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// touchLastSeenQuery only matches rows whose watermark is older than at
func touchLastSeenQuery(chatID, userID int64, at time.Time) squirrel.UpdateBuilder {
	return squirrel.Update("chat_members").
		Set("last_seen", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"chat_id": chatID, "user_id": userID}).
		Where(squirrel.Lt{"last_seen": at}).
		PlaceholderFormat(squirrel.Dollar)
}

// MinLastSeen returns the earliest watermark among the other members
func (r *ChatMemberRepository) MinLastSeen(ctx context.Context, chatID, excludeUserID int64) (*time.Time, int, error) {
	sql, args, err := minLastSeenQuery(chatID, excludeUserID).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error building SQL: %w", err)
	}

	var minSeen *time.Time
	var count int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&minSeen, &count); err != nil {
		return nil, 0, fmt.Errorf("error computing min last seen: %w", err)
	}
	return minSeen, count, nil
}

func minLastSeenQuery(chatID, excludeUserID int64) squirrel.SelectBuilder {
	return squirrel.Select("MIN(last_seen)", "COUNT(*)").
		From("chat_members").
		Where(squirrel.Eq{"chat_id": chatID}).
		Where(squirrel.NotEq{"user_id": excludeUserID}).
		PlaceholderFormat(squirrel.Dollar)
}

func scanMember(row pgx.Row) (*models.ChatMember, error) {
	var m models.ChatMember
	if err := row.Scan(&m.ChatID, &m.UserID, &m.Role, &m.LastSeen, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
