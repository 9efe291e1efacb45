package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func seedUsers(t *testing.T, repos *repositories.Repositories, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		u := &models.User{UserName: n, Name: n + " user", Password: "x"}
		require.NoError(t, repos.Users.Create(context.Background(), u))
		ids = append(ids, u.ID)
	}
	return ids
}

func newDirect(t *testing.T, repos *repositories.Repositories, a, b int64) *models.Chat {
	t.Helper()
	chat := &models.Chat{Kind: models.ChatKindDirect, Members: []int64{a, b}, CreatedAt: t0, UpdatedAt: t0}
	members := []*models.ChatMember{
		{UserID: a, Role: models.RoleAdmin, LastSeen: t0},
		{UserID: b, Role: models.RoleMember, LastSeen: t0},
	}
	require.NoError(t, repos.Chats.Create(context.Background(), chat, members))
	return chat
}

func TestUserNameConflict(t *testing.T) {
	repos := NewRepositories()
	seedUsers(t, repos, "alice")

	err := repos.Users.Create(context.Background(), &models.User{UserName: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDirectChatIsUniquePerPair(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	newDirect(t, repos, ids[0], ids[1])

	again := &models.Chat{Kind: models.ChatKindDirect, Members: []int64{ids[1], ids[0]}}
	err := repos.Chats.Create(ctx, again, nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	found, err := repos.Chats.FindDirect(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0], ids[1]}, found.Members)
}

func TestMemberAddConflictAndNotFound(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	chat := newDirect(t, repos, ids[0], ids[1])

	err := repos.Members.Add(ctx, &models.ChatMember{ChatID: chat.ID, UserID: ids[1], Role: models.RoleMember})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	err = repos.Members.Add(ctx, &models.ChatMember{ChatID: 999, UserID: ids[1], Role: models.RoleMember})
	assert.ErrorIs(t, err, apperrors.ErrResourceNotFound)

	err = repos.Members.Add(ctx, &models.ChatMember{ChatID: chat.ID, UserID: 999, Role: models.RoleMember})
	assert.ErrorIs(t, err, apperrors.ErrResourceNotFound)

	_, err = repos.Members.Get(ctx, chat.ID, 999)
	assert.ErrorIs(t, err, apperrors.ErrResourceNotFound)
}

func TestTouchLastSeenIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	chat := newDirect(t, repos, ids[0], ids[1])

	advanced, err := repos.Members.TouchLastSeen(ctx, chat.ID, ids[1], t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, advanced)

	advanced, err = repos.Members.TouchLastSeen(ctx, chat.ID, ids[1], t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, advanced)

	advanced, err = repos.Members.TouchLastSeen(ctx, chat.ID, ids[1], t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, advanced)

	m, err := repos.Members.Get(ctx, chat.ID, ids[1])
	require.NoError(t, err)
	assert.True(t, m.LastSeen.Equal(t0.Add(time.Minute)))
}

func TestMinLastSeenExcludesUser(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob", "carol")
	chat := &models.Chat{Kind: models.ChatKindGroup, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, repos.Chats.Create(ctx, chat, []*models.ChatMember{
		{UserID: ids[0], Role: models.RoleAdmin, LastSeen: t0},
		{UserID: ids[1], Role: models.RoleMember, LastSeen: t0.Add(2 * time.Minute)},
		{UserID: ids[2], Role: models.RoleMember, LastSeen: t0.Add(5 * time.Minute)},
	}))

	earliest, others, err := repos.Members.MinLastSeen(ctx, chat.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 2, others)
	require.NotNil(t, earliest)
	assert.True(t, earliest.Equal(t0.Add(2*time.Minute)))

	require.NoError(t, repos.Members.Remove(ctx, chat.ID, ids[1]))
	earliest, others, err = repos.Members.MinLastSeen(ctx, chat.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, others)
	assert.True(t, earliest.Equal(t0.Add(5*time.Minute)))
}

func TestMinLastSeenWithNoOtherMembers(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice")
	chat := &models.Chat{Kind: models.ChatKindGroup, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, repos.Chats.Create(ctx, chat, []*models.ChatMember{
		{UserID: ids[0], Role: models.RoleAdmin, LastSeen: t0},
	}))

	earliest, others, err := repos.Members.MinLastSeen(ctx, chat.ID, ids[0])
	require.NoError(t, err)
	assert.Nil(t, earliest)
	assert.Zero(t, others)
}

func TestPageIsGapFreeWithTimestampTies(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	chat := newDirect(t, repos, ids[0], ids[1])

	var all []int64
	for i := 0; i < 23; i++ {
		// three messages per timestamp
		msg := &models.Message{
			ChatID: chat.ID, AuthorID: ids[i%2], Type: models.MessageTypeText,
			Text: "m", CreatedAt: t0.Add(time.Duration(i/3) * time.Second),
		}
		require.NoError(t, repos.Messages.Create(ctx, msg))
		all = append(all, msg.ID)
	}

	var seen []int64
	var cursor *repositories.MessageCursor
	for {
		page, err := repos.Messages.Page(ctx, chat.ID, cursor, 5)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			seen = append(seen, m.ID)
		}
		last := page[len(page)-1]
		cursor = &repositories.MessageCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	require.Len(t, seen, len(all))
	for i := range seen {
		assert.Equal(t, all[len(all)-1-i], seen[i])
	}
}

func TestCountSinceIsStrictAndCapped(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	chat := newDirect(t, repos, ids[0], ids[1])

	for i := 0; i < 10; i++ {
		require.NoError(t, repos.Messages.Create(ctx, &models.Message{
			ChatID: chat.ID, AuthorID: ids[0], Type: models.MessageTypeText,
			Text: "m", CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}

	n, err := repos.Messages.CountSince(ctx, chat.ID, t0.Add(4*time.Second), ids[1], 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = repos.Messages.CountSince(ctx, chat.ID, t0.Add(-time.Second), ids[1], 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountSinceSkipsExcludedAuthor(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	chat := newDirect(t, repos, ids[0], ids[1])

	for i := 0; i < 6; i++ {
		require.NoError(t, repos.Messages.Create(ctx, &models.Message{
			ChatID: chat.ID, AuthorID: ids[i%2], Type: models.MessageTypeText,
			Text: "m", CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}

	n, err := repos.Messages.CountSince(ctx, chat.ID, t0.Add(-time.Second), ids[1], 100)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repos.Messages.CountSince(ctx, chat.ID, t0.Add(-time.Second), ids[0], 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdateSummaryNeverRegresses(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	ids := seedUsers(t, repos, "alice", "bob")
	chat := newDirect(t, repos, ids[0], ids[1])

	newer := &models.Message{ChatID: chat.ID, AuthorID: ids[1], Type: models.MessageTypeText, Text: "hello", CreatedAt: t0.Add(2 * time.Second)}
	older := &models.Message{ChatID: chat.ID, AuthorID: ids[0], Type: models.MessageTypeText, Text: "hi", CreatedAt: t0.Add(time.Second)}
	require.NoError(t, repos.Messages.Create(ctx, newer))
	require.NoError(t, repos.Messages.Create(ctx, older))

	changed, err := repos.Chats.UpdateSummary(ctx, newer)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repos.Chats.UpdateSummary(ctx, older)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repos.Chats.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", *got.LastMessageText)
	assert.Equal(t, ids[1], *got.LastMessageAuthor)
	assert.True(t, got.UpdatedAt.Equal(newer.CreatedAt))
}

func TestUserListPaginates(t *testing.T) {
	repos := NewRepositories()
	seedUsers(t, repos, "carol", "alice", "bob", "alfred")

	users, total, err := repos.Users.List(context.Background(), "al", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "alfred", users[0].UserName)

	users, total, err = repos.Users.List(context.Background(), "", 3, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].UserName)
}
