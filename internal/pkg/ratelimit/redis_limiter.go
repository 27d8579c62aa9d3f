// Package ratelimit implements a fixed-window request limiter shared across
// replicas through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts hits per key in fixed windows using INCR + EXPIRE.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewLimiter creates a limiter allowing limit hits per key per window.
func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	if window < time.Millisecond {
		window = time.Minute
	}
	return &Limiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow records one hit for key and reports whether it is within the limit.
// On a Redis error the hit is allowed and the error returned so callers can
// fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixMilli() / l.window.Milliseconds()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit %s: %w", redisKey, err)
	}
	return incr.Val() <= l.limit, nil
}
