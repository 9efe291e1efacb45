package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyTTL is how long a claimed key blocks repeats
const DefaultIdempotencyTTL = 24 * time.Hour

// Idempotency claims request keys so a retried request is applied once
type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotency creates a new Idempotency store
func NewIdempotency(rdb *redis.Client, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

// Claim returns true the first time key is seen within the TTL
func (s *Idempotency) Claim(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, "idem:"+key, "1", s.ttl).Result()
}

// Release forgets key so the request can be retried, used when the guarded operation failed
func (s *Idempotency) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, "idem:"+key).Err()
}
