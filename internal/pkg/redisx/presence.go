package redisx

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPresenceTTL is how long a session entry survives without a heartbeat. Routers refresh
// their entries well inside this window, so only sessions of a dead instance expire.
const DefaultPresenceTTL = 90 * time.Second

// Presence mirrors the router's room membership into one sorted set per chat so every instance
// can answer who is viewing it. Members are "<userID>:<sessionID>" scored by the last heartbeat.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewPresence creates a new Presence. ttl <= 0 selects DefaultPresenceTTL.
func NewPresence(rdb *redis.Client, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &Presence{rdb: rdb, ttl: ttl, now: time.Now}
}

func viewersKey(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10) + ":viewers"
}

func sessionMember(userID int64, sessionID string) string {
	return strconv.FormatInt(userID, 10) + ":" + sessionID
}

// Join records the session as viewing chatID. Calling it again refreshes the heartbeat.
func (p *Presence) Join(ctx context.Context, chatID, userID int64, sessionID string) error {
	key := viewersKey(chatID)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(p.now().Unix()),
			Member: sessionMember(userID, sessionID),
		})
		pipe.Expire(ctx, key, p.ttl)
		return nil
	})
	return err
}

// Leave removes the session from chatID's viewers. Other sessions of the user stay.
func (p *Presence) Leave(ctx context.Context, chatID, userID int64, sessionID string) error {
	return p.rdb.ZRem(ctx, viewersKey(chatID), sessionMember(userID, sessionID)).Err()
}

// Viewers lists the distinct users with a live session in chatID, ascending. Entries whose
// heartbeat is older than the ttl are pruned first.
func (p *Presence) Viewers(ctx context.Context, chatID int64) ([]int64, error) {
	key := viewersKey(chatID)
	cutoff := p.now().Add(-p.ttl).Unix()

	var members *redis.StringSliceCmd
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		members = pipe.ZRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, m := range members.Val() {
		user, _, _ := strings.Cut(m, ":")
		id, err := strconv.ParseInt(user, 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
