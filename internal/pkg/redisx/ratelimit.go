package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-budget counter per key. Every hit refreshes the window, so a client that
// keeps hammering stays limited until it backs off for a full window.
type Limiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

// NewLimiter creates a new Limiter
func NewLimiter(rdb *redis.Client, limit int64, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts a hit for key and reports whether it is within the budget, with the current count
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	k := "rl:" + key
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= l.limit, n, nil
}

// Limit returns the configured budget
func (l *Limiter) Limit() int64 { return l.limit }

// Window returns the configured window
func (l *Limiter) Window() time.Duration { return l.window }
