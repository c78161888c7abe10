package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the key prefix used by RedisLimiter.
const DefaultRedisPrefix = "kewtag:ratelimit:"

var allowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	if current > tonumber(ARGV[1]) then
		return 0
	end
	return 1
`)

// RedisLimiter implements a fixed-window limiter shared across instances.
//
// Each key gets a counter {prefix}{key} that is incremented atomically by a
// Lua script and expires with the window. Up to twice the limit can pass
// around a window boundary.
//
// On Redis errors Allow fails open and logs at warn level.
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	limiter := ratelimit.NewRedisLimiter(rdb, 300, time.Minute)
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRedisLimiter creates a Redis-backed limiter allowing limit events per
// key per window.
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: DefaultRedisPrefix,
		limit:  limit,
		window: window,
		logger: slog.Default().With("component", "ratelimit>redis"),
	}
}

// WithPrefix sets the key prefix. Returns the limiter for chaining.
func (r *RedisLimiter) WithPrefix(prefix string) *RedisLimiter {
	r.prefix = prefix
	return r
}

// WithLogger sets the logger. Returns the limiter for chaining.
func (r *RedisLimiter) WithLogger(l *slog.Logger) *RedisLimiter {
	if l != nil {
		r.logger = l.With("component", "ratelimit>redis")
	}
	return r
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string) bool {
	result, err := allowScript.Run(ctx, r.client, []string{r.prefix + key}, r.limit, r.window.Milliseconds()).Int()
	if err != nil {
		r.logger.Warn("rate limit check failed, allowing", "key", key, "error", err)
		return true
	}
	return result == 1
}

// Remaining returns the events left for key in the current window.
func (r *RedisLimiter) Remaining(ctx context.Context, key string) (int, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Int()
	if err == redis.Nil {
		return r.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return max(r.limit-val, 0), nil
}

// Reset clears the counter for key.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Compile-time check
var _ Limiter = (*RedisLimiter)(nil)
