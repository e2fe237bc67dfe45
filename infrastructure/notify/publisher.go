package pgnotify

import (
	"context"
	"sync"
)

// Publisher is the narrow fire-and-forget publishing surface C4/C5/C6
// depend on (§6.3). *Bus satisfies it directly; InMemoryBus backs tests
// without a database.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// InMemoryBus is a Publisher test double that records published events
// instead of routing them through PostgreSQL LISTEN/NOTIFY.
type InMemoryBus struct {
	mu        sync.Mutex
	published []Published
}

// Published is one recorded Publish call.
type Published struct {
	Channel string
	Payload interface{}
}

// NewInMemoryBus returns an empty in-memory publisher.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Publish records the event; it never fails, matching the "best-effort"
// delivery contract of §6.3.
func (b *InMemoryBus) Publish(ctx context.Context, channel string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, Published{Channel: channel, Payload: payload})
	return nil
}

// Events returns a snapshot of everything published so far.
func (b *InMemoryBus) Events() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

var _ Publisher = (*Bus)(nil)
var _ Publisher = (*InMemoryBus)(nil)
