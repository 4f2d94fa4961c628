package eventbus

import "sync"

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// Handler is invoked synchronously for each published event.
type Handler func(Event)

// SubscriberID identifies a handler registered with SubscribeFunc.
type SubscriberID uint64

// EventBus implements a publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	SubscribeFunc(Handler) SubscriberID
	UnsubscribeFunc(SubscriberID)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

type handlerEntry struct {
	id SubscriberID
	fn Handler
}

// Bus is the default EventBus implementation.
//
// Handlers run on the publishing goroutine in registration order. Channel
// subscribers receive a non-blocking fan-out copy and miss events when their
// buffer is full.
type Bus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	subs     []chan Event
	nextID   SubscriberID
	closed   bool
	bufSize  int
}

// New creates a new Bus.
func New() *Bus { return &Bus{bufSize: 64} }

// Publish delivers e to all handlers, then to all channel subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.RUnlock()

	// Handlers may subscribe or publish themselves, so they run unlocked.
	for _, h := range handlers {
		h.fn(e)
	}
}

// SubscribeFunc registers a synchronous handler.
func (b *Bus) SubscribeFunc(fn Handler) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{id: b.nextID, fn: fn})
	return b.nextID
}

// UnsubscribeFunc removes a handler registered with SubscribeFunc.
func (b *Bus) UnsubscribeFunc(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Subscribe registers a new channel subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.bufSize)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and drops all handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.handlers = nil
}

// SubscribeTypes registers fn for events whose concrete type is T.
func SubscribeTypes[T any](b EventBus, fn func(T)) SubscriberID {
	return b.SubscribeFunc(func(e Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	})
}
