package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisAttemptKeyPrefix = "tierly:attempts:"

// RedisAttemptLimiter shares failure counters between replicas. Each key is a
// fixed window that starts at the first failure. Redis errors never block a
// request.
type RedisAttemptLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisAttemptLimiter(client *redis.Client, logger *zap.Logger) *RedisAttemptLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAttemptLimiter{client: client, logger: logger.Named("attempts")}
}

func (limiter *RedisAttemptLimiter) tooManyRecent(ctx context.Context, key string, _ time.Time, limit int, _ time.Duration) bool {
	count, err := limiter.client.Get(ctx, redisAttemptKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		limiter.logger.Warn("read attempt counter failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return count >= limit
}

func (limiter *RedisAttemptLimiter) addFailure(ctx context.Context, key string, _ time.Time, window time.Duration) {
	redisKey := redisAttemptKeyPrefix + key
	count, err := limiter.client.Incr(ctx, redisKey).Result()
	if err != nil {
		limiter.logger.Warn("record attempt failed", zap.String("key", key), zap.Error(err))
		return
	}
	if count == 1 {
		if err := limiter.client.Expire(ctx, redisKey, window).Err(); err != nil {
			limiter.logger.Warn("set attempt window failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (limiter *RedisAttemptLimiter) reset(ctx context.Context, key string) {
	if err := limiter.client.Del(ctx, redisAttemptKeyPrefix+key).Err(); err != nil {
		limiter.logger.Warn("reset attempt counter failed", zap.String("key", key), zap.Error(err))
	}
}
