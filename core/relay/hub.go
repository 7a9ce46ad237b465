package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"VibeMelody/core/realtime"
	"VibeMelody/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 16 * 1024
	sendBufferSize = 256
)

// Client 一个 WebSocket 连接
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	UserID string
}

// NewClient wraps conn for userID. limiter may be nil to disable rate limiting.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, limiter *rate.Limiter) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: limiter,
		UserID:  userID,
	}
}

// Hub tracks the live connections of every user. A user may hold several.
type Hub struct {
	// 用户 -> 连接集合
	users map[string]map[*Client]bool

	broadcast chan *BroadcastMessage

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	Message     []byte
	ExcludeUser string // 排除的用户（用于不向发送者回发）
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		users:     make(map[string]map[*Client]bool),
		broadcast: make(chan *BroadcastMessage, 256),
		done:      make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]bool)
	}
	h.users[client.UserID][client] = true

	logger.Info("client registered",
		logger.String("user", client.UserID),
		logger.Int("connections", len(h.users[client.UserID])))
}

// removeClient 移除客户端（需要持有锁）
func (h *Hub) removeClient(client *Client) {
	conns, ok := h.users[client.UserID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(h.users, client.UserID)
	}
	logger.Info("client unregistered", logger.String("user", client.UserID))
}

func (h *Hub) broadcastAll(msg *BroadcastMessage) {
	// sends happen under the read lock so removeClient cannot close a
	// channel mid-send
	var stale []*Client
	h.mu.RLock()
	for userID, conns := range h.users {
		if msg.ExcludeUser != "" && userID == msg.ExcludeUser {
			continue
		}
		for c := range conns {
			select {
			case c.send <- msg.Message:
			default:
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	if len(stale) > 0 {
		// 发送缓冲区满，移除客户端
		h.mu.Lock()
		for _, c := range stale {
			h.removeClient(c)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.users {
		for c := range conns {
			close(c.send)
		}
	}
	h.users = make(map[string]map[*Client]bool)
}

// Register adds client synchronously so events can be sent to it as soon
// as Register returns.
func (h *Hub) Register(client *Client) {
	h.registerClient(client)
}

// Unregister removes client synchronously, so IsOnline reflects the
// departure once it returns.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClient(client)
}

// Broadcast queues evt for every connection except those of excludeUser.
func (h *Hub) Broadcast(evt realtime.Event, excludeUser string) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &BroadcastMessage{Message: data, ExcludeUser: excludeUser}:
	case <-h.done:
	}
	return nil
}

// SendToUser queues evt for every connection of userID.
func (h *Hub) SendToUser(userID string, evt realtime.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.users[userID]
	if len(conns) == 0 {
		return fmt.Errorf("user not connected: %s", userID)
	}
	for c := range conns {
		select {
		case c.send <- data:
		default:
			logger.Warn("send buffer full, event dropped", logger.String("user", userID))
		}
	}
	return nil
}

// IsOnline reports whether userID holds at least one connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUsers 获取在线用户
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.users))
	for id := range h.users {
		out = append(out, id)
	}
	return out
}

// ========== Client 方法 ==========

// ReadPump reads events until the connection fails or ctx ends, then
// unregisters the client.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, evt realtime.Event)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("user", c.UserID))
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.SendEvent(realtime.MustEvent(realtime.EventError, realtime.ErrorData{Message: "rate limited"}))
			continue
		}

		var evt realtime.Event
		if err := json.Unmarshal(message, &evt); err != nil {
			logger.Warn("invalid message format", logger.ErrorField(err), logger.String("user", c.UserID))
			continue
		}
		handler(ctx, c, evt)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent queues evt for this connection only. A full buffer drops it.
func (c *Client) SendEvent(evt realtime.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.users[c.UserID][c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
