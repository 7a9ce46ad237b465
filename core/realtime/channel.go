package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotConnected is returned by Emit when no session is established.
var ErrNotConnected = errors.New("realtime: channel not connected")

// Handler receives inbound events. Handlers run on the channel's delivery
// goroutine one at a time and must not block.
type Handler func(Event)

// Channel is one logical realtime connection per client session.
type Channel interface {
	// Connect establishes the session and announces userID. Calling it again
	// while connected is a no-op.
	Connect(ctx context.Context, userID string) error
	// Disconnect tears down the connection. Subscriptions survive.
	Disconnect() error
	// Emit queues an outbound event without waiting for delivery.
	Emit(evt Event) error
	// Subscribe registers h for events of type t and returns its unsubscribe func.
	Subscribe(t EventType, h Handler) func()
	// UserID returns the authenticated user of the current session.
	UserID() (string, bool)
}

// ChannelError wraps a transport failure with the operation that hit it.
type ChannelError struct {
	Op  string
	URL string
	Err error
}

func (e *ChannelError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("realtime %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

type subscription struct {
	id int
	h  Handler
}

// bus fans inbound events out to subscribers in registration order.
type bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventType][]subscription
}

func newBus() *bus {
	return &bus{subs: make(map[EventType][]subscription)}
}

func (b *bus) subscribe(t EventType, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[t]
			for i, s := range list {
				if s.id == id {
					b.subs[t] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *bus) dispatch(evt Event) {
	b.mu.RLock()
	list := b.subs[evt.Type]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.h
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
