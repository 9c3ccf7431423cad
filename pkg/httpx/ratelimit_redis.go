package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests in fixed windows shared by every replica.
// Burst is ignored; the window count is the hard limit.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "portal:throttle"}
}

func (l *RedisLimiter) Allow(ctx context.Context, cfg RateLimitConfig, key string) (bool, time.Duration, error) {
	window := cfg.Window.Milliseconds()
	if window <= 0 {
		return true, 0, nil
	}
	slot := time.Now().UnixMilli() / window
	redisKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, cfg.Name, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, cfg.Window)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute rate limit transaction: %w", err)
	}

	if incr.Val() > int64(cfg.RequestsPerWindow) {
		return false, ttl.Val(), nil
	}
	return true, 0, nil
}
