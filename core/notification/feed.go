package notification

import (
	"context"
	"fmt"
	"sync"

	"VibeMelody/core/realtime"
	"VibeMelody/logger"
	"VibeMelody/model"
)

// Source loads the stored notifications of userID, newest first.
type Source interface {
	FetchNotifications(ctx context.Context, userID string) ([]model.Notification, error)
}

// Feed is the notification list plus the unread counter.
type Feed struct {
	ch     realtime.Channel
	source Source

	mu     sync.RWMutex
	items  []model.Notification
	unread int
	unsub  func()
}

// NewFeed subscribes to new_notification on ch.
func NewFeed(ch realtime.Channel, source Source) *Feed {
	f := &Feed{ch: ch, source: source}
	f.unsub = ch.Subscribe(realtime.EventNewNotification, f.onPush)
	return f
}

// Close stops listening to the channel.
func (f *Feed) Close() {
	if f.unsub != nil {
		f.unsub()
		f.unsub = nil
	}
}

// FetchAll replaces the feed and recounts unread entries.
func (f *Feed) FetchAll(ctx context.Context) error {
	if f.source == nil {
		return nil
	}
	userID, _ := f.ch.UserID()
	items, err := f.source.FetchNotifications(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}

	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	f.mu.Lock()
	f.items = append([]model.Notification(nil), items...)
	f.unread = unread
	f.mu.Unlock()
	return nil
}

func (f *Feed) onPush(evt realtime.Event) {
	var n model.Notification
	if err := evt.Decode(&n); err != nil {
		logger.Warn("notification event ignored", logger.ErrorField(err))
		return
	}
	f.Push(n)
}

// Push prepends n and bumps the unread counter.
func (f *Feed) Push(n model.Notification) {
	f.mu.Lock()
	f.items = append([]model.Notification{n}, f.items...)
	f.unread++
	f.mu.Unlock()
}

// MarkAllRead zeroes the counter. Entries keep their IsRead flag.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	f.unread = 0
	f.mu.Unlock()
}

// Items returns a copy of the feed, newest first.
func (f *Feed) Items() []model.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]model.Notification(nil), f.items...)
}

// Unread 未读数
func (f *Feed) Unread() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.unread
}

// Reset clears the feed.
func (f *Feed) Reset() {
	f.mu.Lock()
	f.items = nil
	f.unread = 0
	f.mu.Unlock()
}
