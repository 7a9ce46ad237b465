// Package relay is the server side of the realtime channel: it tracks
// connections, presence and activities, and routes direct messages and
// notifications.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"VibeMelody/core/realtime"
	"VibeMelody/logger"
	"VibeMelody/model"
	"VibeMelody/repository"
)

var ErrInvalidNotification = errors.New("relay: notification needs userId and content")

// Relay handles inbound client events.
type Relay struct {
	hub           *Hub
	presence      PresenceStore
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
	users         repository.UserRepository
}

// New 创建 Relay
func New(hub *Hub, presence PresenceStore, messages repository.MessageRepository,
	notifications repository.NotificationRepository, users repository.UserRepository) *Relay {
	return &Relay{
		hub:           hub,
		presence:      presence,
		messages:      messages,
		notifications: notifications,
		users:         users,
	}
}

// Hub returns the connection hub.
func (r *Relay) Hub() *Hub { return r.hub }

// HandleEvent dispatches one event read from c.
func (r *Relay) HandleEvent(ctx context.Context, c *Client, evt realtime.Event) {
	var err error
	switch evt.Type {
	case realtime.EventUserConnected:
		err = r.join(ctx, c)
	case realtime.EventUpdateActivity:
		err = r.updateActivity(ctx, c, evt)
	case realtime.EventSendMessage:
		err = r.sendMessage(ctx, c, evt)
	case realtime.EventRequestPresence:
		err = r.sendSnapshots(ctx, c)
	default:
		err = fmt.Errorf("unknown event type %q", evt.Type)
	}
	if err != nil {
		logger.Warn("relay event failed",
			logger.String("type", string(evt.Type)),
			logger.String("user", c.UserID),
			logger.ErrorField(err))
		c.SendEvent(realtime.MustEvent(realtime.EventError, realtime.ErrorData{Message: err.Error()}))
	}
}

// join marks the user online, replies with presence snapshots and tells
// everyone about the new user.
func (r *Relay) join(ctx context.Context, c *Client) error {
	if err := r.users.Upsert(ctx, &model.User{ID: c.UserID, FullName: c.UserID}); err != nil {
		logger.Warn("record user", logger.String("user", c.UserID), logger.ErrorField(err))
	}
	if err := r.presence.SetOnline(ctx, c.UserID); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	if err := r.presence.SetActivity(ctx, c.UserID, model.IdleActivity); err != nil {
		return fmt.Errorf("set activity: %w", err)
	}
	if err := r.sendSnapshots(ctx, c); err != nil {
		return err
	}
	if err := r.hub.Broadcast(realtime.MustEvent(realtime.EventUserConnected, c.UserID), ""); err != nil {
		return err
	}
	return r.hub.Broadcast(realtime.MustEvent(realtime.EventActivityUpdated, realtime.ActivityData{
		UserID:   c.UserID,
		Activity: model.IdleActivity,
	}), c.UserID)
}

func (r *Relay) sendSnapshots(ctx context.Context, c *Client) error {
	online, err := r.presence.OnlineUsers(ctx)
	if err != nil {
		return fmt.Errorf("list online users: %w", err)
	}
	sort.Strings(online)
	activities, err := r.presence.Activities(ctx)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}

	pairs := make([][2]string, 0, len(activities))
	for id, a := range activities {
		pairs = append(pairs, [2]string{id, a})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	c.SendEvent(realtime.MustEvent(realtime.EventUsersOnline, online))
	c.SendEvent(realtime.MustEvent(realtime.EventActivities, pairs))
	return nil
}

func (r *Relay) updateActivity(ctx context.Context, c *Client, evt realtime.Event) error {
	var data realtime.ActivityData
	if err := evt.Decode(&data); err != nil {
		return err
	}
	// a connection may only speak for its own user
	data.UserID = c.UserID
	if err := r.presence.SetActivity(ctx, data.UserID, data.Activity); err != nil {
		return fmt.Errorf("set activity: %w", err)
	}
	return r.hub.Broadcast(realtime.MustEvent(realtime.EventActivityUpdated, data), "")
}

func (r *Relay) sendMessage(ctx context.Context, c *Client, evt realtime.Event) error {
	var data realtime.SendMessageData
	if err := evt.Decode(&data); err != nil {
		return err
	}
	if data.ReceiverID == "" || strings.TrimSpace(data.Content) == "" {
		return errors.New("message needs receiverId and content")
	}

	msg := model.NewMessage(c.UserID, data.ReceiverID, data.Content)
	if err := r.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	out := realtime.MessageData{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
	if err := r.hub.SendToUser(msg.ReceiverID, realtime.MustEvent(realtime.EventReceiveMessage, out)); err != nil {
		logger.Debug("receiver offline, message stored only", logger.String("receiver", msg.ReceiverID))
	}
	out.ClientID = data.ClientID
	c.SendEvent(realtime.MustEvent(realtime.EventMessageSent, out))
	return nil
}

// Leave is called after a connection closes. It announces the user as gone
// once their last connection is closed.
func (r *Relay) Leave(ctx context.Context, userID string) {
	if r.hub.IsOnline(userID) {
		return
	}
	if err := r.presence.SetOffline(ctx, userID); err != nil {
		logger.Warn("set offline", logger.String("user", userID), logger.ErrorField(err))
	}
	if err := r.hub.Broadcast(realtime.MustEvent(realtime.EventUserDisconnected, userID), ""); err != nil {
		logger.Warn("broadcast disconnect", logger.ErrorField(err))
	}
}

// PushNotification stores a notification and pushes it to the user's
// connections, if any.
func (r *Relay) PushNotification(ctx context.Context, req model.CreateNotificationRequest) (*model.Notification, error) {
	if req.UserID == "" || strings.TrimSpace(req.Content) == "" {
		return nil, ErrInvalidNotification
	}
	n := model.NewNotification(req)
	if err := r.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	if err := r.hub.SendToUser(n.UserID, realtime.MustEvent(realtime.EventNewNotification, n)); err != nil {
		logger.Debug("notification stored for offline user", logger.String("user", n.UserID))
	}
	return n, nil
}
