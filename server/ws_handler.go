package server

import (
	"context"
	"net/http"

	"VibeMelody/core/relay"
	"VibeMelody/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// RealtimeHandler upgrades /ws connections and hands them to the relay.
type RealtimeHandler struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

// NewRealtimeHandler 创建实时处理器
func NewRealtimeHandler(r *relay.Relay, eventsPerSecond float64, burst int) *RealtimeHandler {
	return &RealtimeHandler{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limit: rate.Limit(eventsPerSecond),
		burst: burst,
	}
}

// ServeWS expects the user id in the userId query parameter.
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing userId")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	var limiter *rate.Limiter
	if h.limit > 0 {
		limiter = rate.NewLimiter(h.limit, h.burst)
	}
	hub := h.relay.Hub()
	client := relay.NewClient(hub, conn, userID, limiter)
	hub.Register(client)

	go client.WritePump()

	// the request context ends once the handler returns, so the pump gets its own
	ctx := context.Background()
	client.ReadPump(ctx, h.relay.HandleEvent)
	h.relay.Leave(ctx, userID)
}
