package realtime

import (
	"context"
	"sync"
)

// MemoryChannel is an in-process Channel. It records outbound events and
// delivers inbound ones synchronously through Deliver. It backs offline and
// pre-login sessions.
type MemoryChannel struct {
	bus *bus

	mu         sync.Mutex
	connected  bool
	userID     string
	sent       []Event
	connectErr error

	// deliverMu keeps Deliver calls from different goroutines in FIFO order.
	deliverMu sync.Mutex
}

// NewMemoryChannel creates a disconnected in-memory channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{bus: newBus()}
}

// FailConnect makes subsequent Connect calls fail with err. Pass nil to clear.
func (c *MemoryChannel) FailConnect(err error) {
	c.mu.Lock()
	c.connectErr = err
	c.mu.Unlock()
}

func (c *MemoryChannel) Connect(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return &ChannelError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return &ChannelError{Op: "connect", Err: c.connectErr}
	}
	if c.connected {
		return nil
	}
	c.connected = true
	c.userID = userID
	c.sent = append(c.sent, MustEvent(EventUserConnected, userID))
	return nil
}

func (c *MemoryChannel) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *MemoryChannel) Emit(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.sent = append(c.sent, evt)
	return nil
}

func (c *MemoryChannel) Subscribe(t EventType, h Handler) func() {
	return c.bus.subscribe(t, h)
}

func (c *MemoryChannel) UserID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.connected
}

// Connected reports whether Connect has succeeded without a later Disconnect.
func (c *MemoryChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Deliver hands evt to the subscribers as if the server had pushed it.
func (c *MemoryChannel) Deliver(evt Event) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.bus.dispatch(evt)
}

// Sent returns a copy of every event emitted so far.
func (c *MemoryChannel) Sent() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentOfType filters Sent by event type.
func (c *MemoryChannel) SentOfType(t EventType) []Event {
	var out []Event
	for _, evt := range c.Sent() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// ClearSent forgets recorded outbound events.
func (c *MemoryChannel) ClearSent() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}
