package auth

import (
	"context"
	"sync"

	"github.com/pitabwire/suitekit/model"
)

// Handler reacts to an expired credential.
type Handler func(ctx context.Context, ev model.AuthExpired)

// Bus delivers AuthExpired events to subscribers. The zero value is ready
// to use. A nil *Bus drops events, ignores subscriptions and has no
// subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

type subscription struct {
	id uint64
	fn Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every subscriber synchronously in subscription order.
func (b *Bus) Publish(ctx context.Context, ev model.AuthExpired) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ctx, ev)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
