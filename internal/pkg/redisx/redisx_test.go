package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Config{Addr: addr})
	assert.Error(t, err)
}

func TestPresence(t *testing.T) {
	mr, rdb := newTestRedis(t)
	p := NewPresence(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, p.Join(ctx, 7, 3, "s1"))
	require.NoError(t, p.Join(ctx, 7, 1, "s2"))
	require.NoError(t, p.Join(ctx, 7, 3, "s1"))
	require.NoError(t, p.Join(ctx, 8, 2, "s3"))

	viewers, err := p.Viewers(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, viewers)
	assert.True(t, mr.Exists("chat:7:viewers"))

	require.NoError(t, p.Leave(ctx, 7, 3, "s1"))
	viewers, err = p.Viewers(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, viewers)

	viewers, err = p.Viewers(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, viewers)
}

func TestPresenceIsPerSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	p := NewPresence(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, p.Join(ctx, 5, 7, "on-a"))
	require.NoError(t, p.Join(ctx, 5, 7, "on-b"))

	viewers, err := p.Viewers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, viewers, "users are listed once")

	require.NoError(t, p.Leave(ctx, 5, 7, "on-b"))
	viewers, err = p.Viewers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, viewers, "the other session still holds the room")

	require.NoError(t, p.Leave(ctx, 5, 7, "on-a"))
	viewers, err = p.Viewers(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, viewers)
}

func TestPresenceExpiresWithoutHeartbeat(t *testing.T) {
	_, rdb := newTestRedis(t)
	p := NewPresence(rdb, time.Minute)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Join(ctx, 5, 1, "dead"))
	require.NoError(t, p.Join(ctx, 5, 2, "alive"))

	now = now.Add(45 * time.Second)
	require.NoError(t, p.Join(ctx, 5, 2, "alive"))

	now = now.Add(30 * time.Second)
	viewers, err := p.Viewers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, viewers)

	count, err := rdb.ZCard(ctx, "chat:5:viewers").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "stale entries are pruned")
}

func TestLimiter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, 2, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		ok, n, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.EqualValues(t, i, n)
	}
	ok, n, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 3, n)

	ok, _, err = l.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, ok, "budgets are per key")

	mr.FastForward(time.Minute + time.Second)
	ok, n, err = l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, n)
}

func TestIdempotency(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewIdempotency(rdb, time.Hour)
	ctx := context.Background()

	first, err := s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, s.Release(ctx, "abc"))
	retry, err := s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, retry)

	mr.FastForward(time.Hour + time.Second)
	expired, err := s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, expired)
}
