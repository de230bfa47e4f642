package notify

import (
	"context"
	"sync"
)

// MemoryPublisher keeps published events in memory. Used when no broker is
// configured and in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	limit  int
	closed bool
}

// NewMemoryPublisher keeps at most limit events (0 keeps all).
func NewMemoryPublisher(limit int) *MemoryPublisher {
	return &MemoryPublisher{limit: limit}
}

// Publish appends ev.
func (p *MemoryPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	if p.limit > 0 && len(p.events) > p.limit {
		p.events = p.events[len(p.events)-p.limit:]
	}
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Close marks the publisher closed.
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (p *MemoryPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
