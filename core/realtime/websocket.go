package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"VibeMelody/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// WSChannel is a Channel over a gorilla websocket connection. The user id is
// passed as the userId query parameter and announced with user_connected.
type WSChannel struct {
	url    string
	dialer *websocket.Dialer
	bus    *bus

	mu     sync.Mutex
	active *wsConn
	userID string
}

// wsConn is one physical connection with its own pumps.
type wsConn struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	readDone   chan struct{}
	writeDone  chan struct{}
	dispatches atomic.Int32 // handlers currently running on the read pump
}

// NewWSChannel creates a channel for the given ws:// or wss:// endpoint.
func NewWSChannel(endpoint string) *WSChannel {
	return &WSChannel{
		url: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		bus: newBus(),
	}
}

func (c *WSChannel) Connect(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil
	}

	target, err := url.Parse(c.url)
	if err != nil {
		c.mu.Unlock()
		return &ChannelError{Op: "connect", URL: c.url, Err: err}
	}
	q := target.Query()
	q.Set("userId", userID)
	target.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		c.mu.Unlock()
		return &ChannelError{Op: "connect", URL: c.url, Err: err}
	}

	wc := &wsConn{
		conn: conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
	}
	c.active = wc
	c.userID = userID
	go c.readPump(wc)
	go c.writePump(wc)
	c.mu.Unlock()

	logger.Info("realtime channel connected",
		logger.String("url", c.url),
		logger.String("user", userID))

	return c.Emit(MustEvent(EventUserConnected, userID))
}

// Disconnect closes the active connection. Handlers may call it; the read
// pump then stops after the running handler returns.
func (c *WSChannel) Disconnect() error {
	c.mu.Lock()
	wc := c.active
	c.active = nil
	c.mu.Unlock()
	if wc == nil {
		return nil
	}

	close(wc.done)
	<-wc.writeDone
	// a handler calling Disconnect runs on the read pump; it exits once
	// the handler returns
	if wc.dispatches.Load() == 0 {
		<-wc.readDone
	}
	logger.Info("realtime channel disconnected", logger.String("url", c.url))
	return nil
}

func (c *WSChannel) Emit(evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNotConnected
	}
	select {
	case c.active.send <- data:
		return nil
	default:
		// 缓冲区满，丢弃消息
		logger.Warn("realtime send buffer full, event dropped", logger.String("type", string(evt.Type)))
		return &ChannelError{Op: "emit", URL: c.url, Err: errors.New("send buffer full")}
	}
}

func (c *WSChannel) Subscribe(t EventType, h Handler) func() {
	return c.bus.subscribe(t, h)
}

func (c *WSChannel) UserID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.active != nil
}

// drop forgets wc if it is still the active connection.
func (c *WSChannel) drop(wc *wsConn) {
	c.mu.Lock()
	if c.active == wc {
		c.active = nil
		close(wc.done)
	}
	c.mu.Unlock()
}

func (c *WSChannel) readPump(wc *wsConn) {
	defer func() {
		c.drop(wc)
		close(wc.readDone)
	}()

	wc.conn.SetReadLimit(maxMessageSize)
	wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := wc.conn.ReadMessage()
		if err != nil {
			select {
			case <-wc.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("realtime read error", logger.ErrorField(err), logger.String("url", c.url))
				}
			}
			return
		}

		// the server coalesces queued frames with '\n'
		for _, frame := range bytes.Split(message, []byte{'\n'}) {
			if len(bytes.TrimSpace(frame)) == 0 {
				continue
			}
			var evt Event
			if err := json.Unmarshal(frame, &evt); err != nil {
				logger.Warn("invalid realtime frame", logger.ErrorField(err))
				continue
			}
			wc.dispatches.Add(1)
			c.bus.dispatch(evt)
			wc.dispatches.Add(-1)
			select {
			case <-wc.done:
				return
			default:
			}
		}
	}
}

func (c *WSChannel) writePump(wc *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
		close(wc.writeDone)
	}()

	for {
		select {
		case message := <-wc.send:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("realtime write error", logger.ErrorField(err))
				return
			}

		case <-ticker.C:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-wc.done:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			wc.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
