// Package chat holds the direct-message ledger and the local assistant buffer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"VibeMelody/core/realtime"
	"VibeMelody/logger"
	"VibeMelody/model"
)

var (
	ErrNoPeer       = errors.New("chat: no peer selected")
	ErrEmptyContent = errors.New("chat: empty message")
)

// HistorySource loads the stored conversation between userID and peerID.
type HistorySource interface {
	FetchMessages(ctx context.Context, userID, peerID string) ([]model.Message, error)
}

// Ledger is the ordered, de-duplicated message list of the selected peer.
// Messages are appended in arrival order; an id is never stored twice.
type Ledger struct {
	ch      realtime.Channel
	history HistorySource
	pending *PendingTable

	mu       sync.RWMutex
	peerID   string
	messages []model.Message
	ids      map[string]struct{}
	unsubs   []func()

	// messages for fetching that arrive while its history is loading
	fetching string
	inflight []model.Message
}

// NewLedger subscribes to message events on ch. history may be nil, in which
// case FetchHistory only switches the peer.
func NewLedger(ch realtime.Channel, history HistorySource, pending *PendingTable) *Ledger {
	if pending == nil {
		pending = NewPendingTable(0)
	}
	l := &Ledger{
		ch:      ch,
		history: history,
		pending: pending,
		ids:     make(map[string]struct{}),
	}
	l.unsubs = []func(){
		ch.Subscribe(realtime.EventReceiveMessage, l.onMessage),
		ch.Subscribe(realtime.EventMessageSent, l.onMessage),
	}
	return l
}

// Close stops listening to the channel.
func (l *Ledger) Close() {
	for _, unsub := range l.unsubs {
		unsub()
	}
	l.unsubs = nil
}

// FetchHistory selects peerID and replaces the ledger with the stored
// conversation. On error nothing changes. Messages with peerID delivered
// while the fetch runs are kept after the history, so one stored after the
// server read its history is not lost.
func (l *Ledger) FetchHistory(ctx context.Context, peerID string) error {
	if peerID == "" {
		return ErrNoPeer
	}
	l.mu.Lock()
	l.fetching = peerID
	l.inflight = nil
	l.mu.Unlock()

	var msgs []model.Message
	if l.history != nil {
		userID, _ := l.ch.UserID()
		var err error
		msgs, err = l.history.FetchMessages(ctx, userID, peerID)
		if err != nil {
			l.mu.Lock()
			l.endFetchLocked(peerID)
			l.mu.Unlock()
			return fmt.Errorf("fetch history with %s: %w", peerID, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	arrived := l.endFetchLocked(peerID)
	l.peerID = peerID
	l.messages = l.messages[:0:0]
	l.ids = make(map[string]struct{}, len(msgs)+len(arrived))
	for _, m := range msgs {
		l.appendLocked(m)
	}
	for _, m := range arrived {
		l.appendLocked(m)
	}
	return nil
}

// endFetchLocked returns what arrived for peerID during its fetch. A newer
// fetch for another peer keeps its own buffer.
func (l *Ledger) endFetchLocked(peerID string) []model.Message {
	if l.fetching != peerID {
		return nil
	}
	arrived := l.inflight
	l.fetching = ""
	l.inflight = nil
	return arrived
}

// Send emits send_message to peerID and returns the correlation id. The
// message is not appended locally; it arrives through message_sent.
func (l *Ledger) Send(peerID, content string) (string, error) {
	if peerID == "" {
		return "", ErrNoPeer
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	userID, ok := l.ch.UserID()
	if !ok {
		return "", realtime.ErrNotConnected
	}

	clientID := l.pending.Add(peerID, content)
	evt, err := realtime.NewEvent(realtime.EventSendMessage, realtime.SendMessageData{
		SenderID:   userID,
		ReceiverID: peerID,
		Content:    content,
		ClientID:   clientID,
	})
	if err == nil {
		err = l.ch.Emit(evt)
	}
	if err != nil {
		l.pending.Remove(clientID)
		logger.Warn("send message failed", logger.String("peer", peerID), logger.ErrorField(err))
		return "", err
	}
	return clientID, nil
}

func (l *Ledger) onMessage(evt realtime.Event) {
	var data realtime.MessageData
	if err := evt.Decode(&data); err != nil {
		logger.Warn("message event ignored", logger.ErrorField(err))
		return
	}
	if evt.Type == realtime.EventMessageSent && data.ClientID != "" {
		l.pending.Resolve(data.ClientID)
	}
	l.Append(model.Message{
		ID:         data.ID,
		SenderID:   data.SenderID,
		ReceiverID: data.ReceiverID,
		Content:    data.Content,
		CreatedAt:  data.CreatedAt,
	})
}

// Append adds m unless its id is already present or it belongs to another
// conversation than the selected peer. It reports whether m was stored.
func (l *Ledger) Append(m model.Message) bool {
	if m.ID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetching != "" && m.Involves(l.fetching) {
		l.inflight = append(l.inflight, m)
	}
	if l.peerID != "" && !m.Involves(l.peerID) {
		return false
	}
	return l.appendLocked(m)
}

func (l *Ledger) appendLocked(m model.Message) bool {
	if _, dup := l.ids[m.ID]; dup {
		return false
	}
	l.ids[m.ID] = struct{}{}
	l.messages = append(l.messages, m)
	return true
}

// Peer returns the selected peer, empty when none.
func (l *Ledger) Peer() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peerID
}

// Messages returns a copy of the ledger in arrival order.
func (l *Ledger) Messages() []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Message(nil), l.messages...)
}

// Pending exposes the unacknowledged sends.
func (l *Ledger) Pending() *PendingTable {
	return l.pending
}

// Reset clears the ledger and the selected peer.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.peerID = ""
	l.messages = nil
	l.ids = make(map[string]struct{})
	l.fetching = ""
	l.inflight = nil
	l.mu.Unlock()
}
