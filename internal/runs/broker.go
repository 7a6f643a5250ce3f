package runs

import (
	"context"
	"sync"
)

const defaultSubscriberBuffer = 64

// Broker fans events out to live subscribers. Delivery is best effort: a
// subscriber that stops draining its channel misses events rather than
// stalling the publisher, which may be holding the store's write path.
type Broker[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	done   chan struct{}
	buffer int
}

// NewBroker constructs a broker whose subscriber channels hold buffer
// events. A non-positive buffer selects the default.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broker[T]{
		subs:   make(map[chan T]struct{}),
		done:   make(chan struct{}),
		buffer: buffer,
	}
}

// Subscribe registers for future events. The returned channel closes when
// ctx is done or the broker shuts down; after shutdown it returns an
// already closed channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan T)
		close(ch)
		return ch
	default:
	}

	ch := make(chan T, b.buffer)
	b.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}()

	return ch
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Broker[T]) Publish(event T) {
	b.mu.RLock()
	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}
	targets := make([]chan T, 0, len(b.subs))
	for ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Shutdown closes every subscriber channel and rejects new subscriptions.
func (b *Broker[T]) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}
