package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increments the window counter, opening the window on the first hit, and
// returns {count, pttl}. Runs atomically so concurrent instances cannot over-admit.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

// RedisLimiter shares fixed windows between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		script: redis.NewScript(fixedWindowScript),
	}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	redisKey := key
	if l.prefix != "" {
		redisKey = l.prefix + ":" + key
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	vals, err := l.script.Run(ctx, l.client, []string{redisKey}, ttl).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit %s: unexpected script reply %v", key, vals)
	}
	count, pttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if count > max {
		return Result{Allowed: false, Remaining: 0, ResetIn: pttl}, nil
	}
	return Result{Allowed: true, Remaining: max - count}, nil
}
