package ratelimit

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Error is returned when a request exceeds its window. RetryAfter is the
// time until the oldest in-window request falls out of the window.
type Error struct {
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Limiter implements sliding-window throttling over a redis sorted set:
// request timestamps are members scored by time, pruned on every check.
// Throttling is advisory; a redis outage fails open so auth keeps working.
type Limiter struct {
	rdb redis.UniversalClient

	// now is swappable in tests to move the window without sleeping.
	now func() time.Time
}

func New(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb, now: time.Now}
}

// Check records the request under scope/key unless the window is already
// full. Rejected requests are not recorded, so a throttled client cannot
// extend its own lockout by retrying.
func (l *Limiter) Check(ctx context.Context, scope, key string, limit int, window time.Duration) error {
	if l == nil || l.rdb == nil || limit <= 0 {
		return nil
	}

	nowMs := l.now().UnixMilli()
	windowMs := window.Milliseconds()
	redisKey := "rl:" + scope + ":" + key

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(nowMs-windowMs, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("ratelimit: redis unavailable, failing open: scope=%s err=%v", scope, err)
		return nil
	}

	if countCmd.Val() >= int64(limit) {
		// Compute real retry-after from the oldest member still in the window.
		retryMs := windowMs
		oldest, err := l.rdb.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestMs := int64(oldest[0].Score)
			retryMs = oldestMs + windowMs - nowMs
		}
		if retryMs < 1000 {
			retryMs = 1000
		}
		return &Error{RetryAfter: time.Duration(retryMs) * time.Millisecond}
	}

	// Member carries a uuid suffix so requests landing in the same
	// millisecond still count separately.
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()
	pipe = l.rdb.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("ratelimit: record failed: scope=%s err=%v", scope, err)
	}
	return nil
}
