package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a Redis-backed Limiter, suitable for sharing one rate
// limit across multiple ingest replicas.
type RedisLimiter struct {
	client *redis.Client
	config *Config
	script *redis.Script
}

// NewRedisLimiter connects to Redis and prepares the sliding-window script.
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	// Atomic check-and-increment over a sorted set keyed by timestamp.
	script := redis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local now = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

		local current = redis.call('ZCARD', key)

		if current < limit then
			redis.call('ZADD', key, now, now .. ':' .. math.random())
			redis.call('EXPIRE', key, window / 1000 + 1)
			return 1
		end

		return 0
	`)

	return &RedisLimiter{
		client: client,
		config: cfg,
		script: script,
	}, nil
}

// Allow reports whether one request under key falls within the sliding
// window of cfg.Requests per cfg.Window, shared across every replica
// talking to the same Redis instance.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	now := time.Now().UnixMilli()
	window := l.config.Window.Milliseconds()

	allowed, err := l.script.Run(ctx, l.client, []string{redisKey},
		l.config.Requests, window, now).Int64()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}

	return allowed == 1, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
