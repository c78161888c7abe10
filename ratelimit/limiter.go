// Package ratelimit throttles tag scans per client.
//
// Scanning is the one public, unauthenticated-friendly operation of the API,
// and a misbehaving handheld can loop on a bad label. Limits are applied per
// key, usually the client address.
//
// Two implementations are provided:
//   - TokenBucket: in-process token bucket per key (golang.org/x/time/rate)
//   - RedisLimiter: fixed window per key shared by every API instance
//
// Usage:
//
//	// 5 scans per second per client, bursts of 20
//	limiter := ratelimit.NewTokenBucket(5, 20)
//	defer limiter.Close()
//
//	if !limiter.Allow(ctx, clientIP) {
//	    // 429
//	}
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a keyed event may happen now.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether an event for key may happen now and, if so,
	// consumes one unit of the key's allowance. Non-blocking.
	Allow(ctx context.Context, key string) bool
}

// DefaultIdleTTL is how long an unused key keeps its bucket.
const DefaultIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucket keeps one token bucket per key in memory.
//
// Tokens are added at rps per second up to burst; each Allow consumes one.
// Buckets idle for longer than the idle TTL are evicted by a background
// sweep, so memory stays bounded by the number of active clients.
type TokenBucket struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopCh chan struct{}
	once   sync.Once
}

// NewTokenBucket creates a per-key token bucket limiter.
//
// Parameters:
//   - rps: events per second per key
//   - burst: maximum events a key may spend at once
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	t := &TokenBucket{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     DefaultIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go t.sweep()
	return t
}

// Allow implements Limiter.
func (t *TokenBucket) Allow(ctx context.Context, key string) bool {
	now := t.now()

	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now
	t.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Limit returns the configured rate in events per second.
func (t *TokenBucket) Limit() float64 {
	return float64(t.rps)
}

// Burst returns the configured burst size.
func (t *TokenBucket) Burst() int {
	return t.burst
}

// Len returns the number of tracked keys.
func (t *TokenBucket) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// Close stops the background sweep. Safe to call multiple times.
func (t *TokenBucket) Close() error {
	t.once.Do(func() { close(t.stopCh) })
	return nil
}

func (t *TokenBucket) sweep() {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.evictIdle()
		}
	}
}

func (t *TokenBucket) evictIdle() {
	cutoff := t.now().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
		}
	}
}

// Unlimited allows every event.
type Unlimited struct{}

// Allow implements Limiter.
func (Unlimited) Allow(context.Context, string) bool { return true }

// Compile-time checks
var (
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = Unlimited{}
)
