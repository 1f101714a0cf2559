package events

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber receives events from a Broadcaster.
type Subscriber chan Event

// Broadcaster delivers every event to all subscribers without blocking the
// emitter. A subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	buffer int
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer n events.
func NewBroadcaster(n int, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n <= 0 {
		n = 64
	}
	return &Broadcaster{
		subs:   make(map[Subscriber]struct{}),
		buffer: n,
		logger: logger,
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := make(Subscriber, b.buffer)
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes and closes a subscriber.
func (b *Broadcaster) Unsubscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s)
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s <- e:
		default:
			b.logger.Warn("subscriber buffer full, dropping event", zap.String("event", string(e.Name())))
		}
	}
}
