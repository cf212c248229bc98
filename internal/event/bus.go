package event

import (
	"log/slog"
	"sync"
)

// Handler receives events for one subscription. It runs on the
// subscription's own goroutine, so handlers of different subscriptions may
// run in parallel while a single subscription sees its events in order.
type Handler func(Event)

// Bus is an in-process publish/subscribe hub keyed by Kind.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]*subscription
	buffer int
	logger *slog.Logger
	closed bool
}

type subscription struct {
	kind Kind
	ch   chan Event
	once sync.Once
	done chan struct{}
}

// NewBus creates a Bus whose subscriptions buffer up to buffer pending events.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Kind][]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers fn for kind and returns a function that removes the
// subscription and waits for its goroutine to exit.
func (b *Bus) Subscribe(kind Kind, fn Handler) (unsubscribe func()) {
	s := &subscription{
		kind: kind,
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], s)
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		for ev := range s.ch {
			b.deliver(fn, ev)
		}
	}()

	return func() {
		b.mu.Lock()
		list := b.subs[kind]
		for i, other := range list {
			if other == s {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
		<-s.done
	}
}

// Publish fans ev out to every subscriber of ev.Kind without blocking.
// A subscriber whose buffer is full misses the event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs[ev.Kind] {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("event dropped: subscriber buffer full", "kind", ev.Kind, "id", ev.ID)
		}
	}
}

// Close stops every subscription. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[Kind][]*subscription)
	b.mu.Unlock()
	for _, s := range all {
		s.once.Do(func() { close(s.ch) })
		<-s.done
	}
}

func (b *Bus) deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}
