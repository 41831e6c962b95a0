// Package ratelimit implements the per-user sliding window applied to payment creation.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed bool
	ResetAt time.Time
}

type Limiter interface {
	Check(ctx context.Context, userID string) (Result, error)
}

type RedisLimiter struct {
	client      redis.Cmdable
	maxRequests int
	window      time.Duration
	prefix      string
	now         func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		prefix:      "payments:ratelimit:",
		now:         time.Now,
	}
}

// Check records the attempt in a sorted set scored by unix millis and rolls it back when the
// window is already full, so rejected attempts do not extend the block.
func (l *RedisLimiter) Check(ctx context.Context, userID string) (Result, error) {
	now := l.now().UTC()
	key := l.prefix + userID
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	windowStart := now.Add(-l.window).UnixMilli()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	resetAt := now.Add(l.window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).UTC().Add(l.window)
	}

	if countCmd.Val() > int64(l.maxRequests) {
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit rollback: %w", err)
		}
		return Result{Allowed: false, ResetAt: resetAt}, nil
	}

	return Result{Allowed: true, ResetAt: resetAt}, nil
}

type transactionCounter interface {
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, time.Time, error)
}

// SQLLimiter counts the user's transactions inside the window. Used when Redis is not configured.
type SQLLimiter struct {
	counter     transactionCounter
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func NewSQLLimiter(counter transactionCounter, maxRequests int, window time.Duration) *SQLLimiter {
	return &SQLLimiter{
		counter:     counter,
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

func (l *SQLLimiter) Check(ctx context.Context, userID string) (Result, error) {
	now := l.now().UTC()
	count, oldest, err := l.counter.CountCreatedSince(ctx, userID, now.Add(-l.window))
	if err != nil {
		return Result{}, err
	}

	if count >= l.maxRequests {
		resetAt := now.Add(l.window)
		if !oldest.IsZero() {
			resetAt = oldest.UTC().Add(l.window)
		}
		return Result{Allowed: false, ResetAt: resetAt}, nil
	}

	return Result{Allowed: true, ResetAt: now.Add(l.window)}, nil
}
