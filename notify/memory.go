package notify

import (
	"context"
	"slices"
	"sync"
)

// MemoryPublisher records events in memory.
// It is intended for tests and local development.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records a copy of e.
func (p *MemoryPublisher) Publish(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	c := *e
	p.events = append(p.events, &c)
	return nil
}

// Events returns the recorded events in publish order.
func (p *MemoryPublisher) Events() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// Reset drops the recorded events.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// Close stops accepting events. Recorded events stay readable.
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Compile-time check
var _ Publisher = (*MemoryPublisher)(nil)
