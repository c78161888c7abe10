package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the key prefix used by RedisRegistry.
const DefaultRedisPrefix = "kewtag:code:"

// RedisRegistry implements Registry using Redis.
//
// Reservation is a single SET NX, so two instances minting the same code
// cannot both succeed.
//
// Redis Commands Used:
//   - SET NX (with optional expiry): reserve
//   - DEL: release
//   - EXISTS: lookup
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	reg := reservation.NewRedisRegistry(rdb, 0)
type RedisRegistry struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisRegistry creates a Redis-backed registry.
// A ttl of zero keeps reservations forever.
func NewRedisRegistry(client redis.UniversalClient, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		ttl:    ttl,
		prefix: DefaultRedisPrefix,
	}
}

// WithPrefix sets a custom prefix for Redis keys.
// Returns the registry for method chaining.
func (r *RedisRegistry) WithPrefix(prefix string) *RedisRegistry {
	r.prefix = prefix
	return r
}

// Reserve records code with SET NX.
func (r *RedisRegistry) Reserve(ctx context.Context, code string) (bool, error) {
	set, err := r.client.SetNX(ctx, r.prefix+code, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return set, nil
}

// Release deletes the reservation.
func (r *RedisRegistry) Release(ctx context.Context, code string) error {
	return r.client.Del(ctx, r.prefix+code).Err()
}

// Exists reports whether code is reserved.
func (r *RedisRegistry) Exists(ctx context.Context, code string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+code).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Compile-time check
var _ Registry = (*RedisRegistry)(nil)
