// Package session wires the player, presence, chat and notification
// components around one realtime channel.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"VibeMelody/core/chat"
	"VibeMelody/core/notification"
	"VibeMelody/core/player"
	"VibeMelody/core/presence"
	"VibeMelody/core/realtime"
	"VibeMelody/logger"
	"VibeMelody/model"
)

// ErrAlreadyConnected is returned when connecting as another user while a
// session is open. SignOut first.
var ErrAlreadyConnected = errors.New("session already connected as another user")

// Remote is the REST side of the relay server. *api.Client implements it.
type Remote interface {
	FetchUsers(ctx context.Context, userID string) ([]model.User, error)
	FetchMessages(ctx context.Context, userID, peerID string) ([]model.Message, error)
	FetchNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	AskAssistant(ctx context.Context, prompt string) (string, error)
}

// Options 会话配置
type Options struct {
	Store          player.StateStore // nil keeps playback in memory only
	PendingTimeout time.Duration     // zero disables send expiry
}

// Session is one signed-in client.
type Session struct {
	ch     realtime.Channel
	remote Remote

	player    *player.Engine
	presence  *presence.Registry
	ledger    *chat.Ledger
	feed      *notification.Feed
	assistant *chat.AssistantBuffer

	mu    sync.RWMutex
	peers []model.User
}

// New builds a session over ch. remote may be nil for offline use.
func New(ch realtime.Channel, remote Remote, opts Options) *Session {
	var (
		history chat.HistorySource
		source  notification.Source
	)
	if remote != nil {
		history = remote
		source = remote
	}

	return &Session{
		ch:        ch,
		remote:    remote,
		player:    player.NewEngine(player.NewActivityPublisher(ch), opts.Store),
		presence:  presence.NewRegistry(ch),
		ledger:    chat.NewLedger(ch, history, chat.NewPendingTable(opts.PendingTimeout)),
		feed:      notification.NewFeed(ch, source),
		assistant: chat.NewAssistantBuffer(),
	}
}

// Connect opens the channel for userID, then loads peers and notifications
// and republishes a restored playing track. Load failures are logged; only
// a channel failure is returned. Connecting again as the same user does
// nothing.
func (s *Session) Connect(ctx context.Context, userID string) error {
	if cur, ok := s.ch.UserID(); ok {
		if cur == userID {
			return nil
		}
		return ErrAlreadyConnected
	}
	if err := s.ch.Connect(ctx, userID); err != nil {
		return err
	}

	if err := s.loadPeers(ctx); err != nil {
		logger.Warn("load peers", logger.String("user", userID), logger.ErrorField(err))
	}
	if err := s.feed.FetchAll(ctx); err != nil {
		logger.Warn("load notifications", logger.String("user", userID), logger.ErrorField(err))
	}
	s.player.Announce()
	return nil
}

func (s *Session) loadPeers(ctx context.Context) error {
	userID, ok := s.ch.UserID()
	if s.remote == nil || !ok {
		return nil
	}
	users, err := s.remote.FetchUsers(ctx, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.peers = users
	s.mu.Unlock()
	return nil
}

// Disconnect closes the channel. Projections are kept.
func (s *Session) Disconnect() error {
	return s.ch.Disconnect()
}

// SignOut disconnects and clears every projection and the player.
func (s *Session) SignOut() error {
	err := s.ch.Disconnect()
	s.player.Reset()
	s.presence.Reset()
	s.ledger.Reset()
	s.feed.Reset()
	s.assistant.Reset()
	s.mu.Lock()
	s.peers = nil
	s.mu.Unlock()
	return err
}

// Close unsubscribes every component and flushes the player store.
func (s *Session) Close() error {
	s.presence.Close()
	s.ledger.Close()
	s.feed.Close()
	return s.player.Close()
}

// Player exposes the playback engine.
func (s *Session) Player() *player.Engine { return s.player }

// SelectPeer switches the conversation and loads its history.
func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	return s.ledger.FetchHistory(ctx, peerID)
}

// Send emits a message to peerID and returns its correlation id.
func (s *Session) Send(peerID, content string) (string, error) {
	return s.ledger.Send(peerID, content)
}

// ExpirePending returns sends that were never acknowledged in time.
func (s *Session) ExpirePending(now time.Time) []chat.PendingSend {
	return s.ledger.Pending().Expire(now)
}

// MarkAllRead zeroes the unread counter.
func (s *Session) MarkAllRead() { s.feed.MarkAllRead() }

// RefreshPresence asks the server for fresh presence snapshots.
func (s *Session) RefreshPresence() error {
	evt, err := realtime.NewEvent(realtime.EventRequestPresence, nil)
	if err != nil {
		return err
	}
	return s.ch.Emit(evt)
}

// AskAssistant sends prompt to the assistant and records both turns.
func (s *Session) AskAssistant(ctx context.Context, prompt string) (model.AssistantMessage, error) {
	if s.remote == nil {
		return model.AssistantMessage{}, realtime.ErrNotConnected
	}
	return s.assistant.Ask(ctx, s.remote, prompt)
}

// ========== 快照 ==========

func (s *Session) Playback() model.PlaybackState { return s.player.Snapshot() }

func (s *Session) OnlineUsers() []string { return s.presence.OnlineUsers() }

func (s *Session) Activities() map[string]string { return s.presence.Activities() }

// Presence merges online state and activity per user.
func (s *Session) Presence() []model.PresenceEntry { return s.presence.Entries() }

func (s *Session) Messages() []model.Message { return s.ledger.Messages() }

func (s *Session) Peer() string { return s.ledger.Peer() }

func (s *Session) Notifications() []model.Notification { return s.feed.Items() }

func (s *Session) Unread() int { return s.feed.Unread() }

func (s *Session) AssistantMessages() []model.AssistantMessage { return s.assistant.Messages() }

// Peers returns the peer list fetched on connect.
func (s *Session) Peers() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.User(nil), s.peers...)
}
