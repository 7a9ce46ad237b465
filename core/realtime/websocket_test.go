package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newEchoServer accepts one connection, reports the first frame and the
// userId query, then pushes frames from push.
func newEchoServer(t *testing.T, first chan<- Event, users chan<- string, push <-chan []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		users <- r.URL.Query().Get("userId")

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err == nil {
			first <- evt
		}
		for frame := range push {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSChannelAnnouncesAndDispatchesCoalescedFrames(t *testing.T) {
	first := make(chan Event, 1)
	users := make(chan string, 1)
	push := make(chan []byte, 1)
	srv := newEchoServer(t, first, users, push)

	ch := NewWSChannel(wsURL(srv))
	received := make(chan Event, 4)
	ch.Subscribe(EventUserConnected, func(e Event) { received <- e })
	ch.Subscribe(EventUserDisconnected, func(e Event) { received <- e })

	if err := ch.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { ch.Disconnect() })

	select {
	case u := <-users:
		if u != "alice" {
			t.Fatalf("userId query = %q, want alice", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}
	select {
	case evt := <-first:
		if evt.Type != EventUserConnected {
			t.Fatalf("first frame type = %s, want user_connected", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("user_connected not received by server")
	}

	a, _ := json.Marshal(MustEvent(EventUserConnected, "bob"))
	b, _ := json.Marshal(MustEvent(EventUserDisconnected, "bob"))
	push <- append(append(a, '\n'), b...)
	close(push)

	var order []EventType
	for len(order) < 2 {
		select {
		case evt := <-received:
			order = append(order, evt.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v before timeout", order)
		}
	}
	if order[0] != EventUserConnected || order[1] != EventUserDisconnected {
		t.Fatalf("dispatch order = %v", order)
	}
}

func TestWSChannelConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	ch := NewWSChannel(url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := ch.Connect(ctx, "alice")
	var chErr *ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("Connect error = %v, want *ChannelError", err)
	}
	if _, ok := ch.UserID(); ok {
		t.Fatal("UserID reports a session after failed connect")
	}
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("Disconnect on idle channel: %v", err)
	}
}

func TestWSChannelDisconnectFromHandler(t *testing.T) {
	first := make(chan Event, 1)
	users := make(chan string, 1)
	push := make(chan []byte, 1)
	srv := newEchoServer(t, first, users, push)

	ch := NewWSChannel(wsURL(srv))
	returned := make(chan error, 1)
	ch.Subscribe(EventUserDisconnected, func(e Event) { returned <- ch.Disconnect() })

	if err := ch.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { ch.Disconnect() })
	<-first

	frame, _ := json.Marshal(MustEvent(EventUserDisconnected, "alice"))
	push <- frame
	close(push)

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect called from a handler never returned")
	}
	if _, ok := ch.UserID(); ok {
		t.Fatal("channel still connected")
	}
}
