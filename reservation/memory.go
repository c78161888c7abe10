package reservation

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry implements Registry using in-memory storage.
//
// Suitable for single-instance deployments and tests. Reservations are lost
// on restart, so a restarted instance may reissue a code; pair it with a
// store that enforces code uniqueness.
//
// Example:
//
//	reg := reservation.NewMemoryRegistry(30 * 24 * time.Hour)
//	defer reg.Close()
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time // code -> expiry, zero means never
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryRegistry creates an in-memory registry.
//
// A ttl of zero keeps reservations forever. With a positive ttl a background
// goroutine removes expired entries every minute; call Close to stop it.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	r := &MemoryRegistry{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if ttl > 0 {
		go r.cleanup()
	}
	return r
}

// Reserve records code unless it is already reserved and unexpired.
func (r *MemoryRegistry) Reserve(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expiry, ok := r.entries[code]; ok && !r.expired(expiry, now) {
		return false, nil
	}
	var expiry time.Time
	if r.ttl > 0 {
		expiry = now.Add(r.ttl)
	}
	r.entries[code] = expiry
	return true, nil
}

// Release frees code.
func (r *MemoryRegistry) Release(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, code)
	return nil
}

// Exists reports whether code is reserved and unexpired.
func (r *MemoryRegistry) Exists(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expiry, ok := r.entries[code]
	return ok && !r.expired(expiry, r.now()), nil
}

// Len returns the number of entries, including expired ones not yet cleaned up.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (r *MemoryRegistry) Close() error {
	r.once.Do(func() { close(r.stopCh) })
	return nil
}

func (r *MemoryRegistry) expired(expiry, now time.Time) bool {
	return !expiry.IsZero() && now.After(expiry)
}

func (r *MemoryRegistry) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.mu.Lock()
			now := r.now()
			for code, expiry := range r.entries {
				if r.expired(expiry, now) {
					delete(r.entries, code)
				}
			}
			r.mu.Unlock()
		}
	}
}

// Compile-time check that MemoryRegistry implements Registry interface
var _ Registry = (*MemoryRegistry)(nil)
