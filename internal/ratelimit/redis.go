package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed-window counters between replicas.
type RedisLimiter struct {
	client *redis.Client
	scope  string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, scope string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, scope: scope, limit: limit, window: window}
}

func (rl *RedisLimiter) key(k string) string {
	return "ratelimit:" + rl.scope + ":" + k
}

func (rl *RedisLimiter) Allow(ctx context.Context, k string) (Decision, error) {
	key := rl.key(k)
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := rl.client.PExpire(ctx, key, rl.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if int(count) <= rl.limit {
		return Decision{Allowed: true, Remaining: rl.limit - int(count)}, nil
	}

	ttl, err := rl.client.PTTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl < 0 {
		// counter lost its expiry; restart the window
		_ = rl.client.PExpire(ctx, key, rl.window).Err()
		ttl = rl.window
	}
	return Decision{RetryAfter: ttl}, nil
}
