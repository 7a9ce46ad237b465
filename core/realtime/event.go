package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// 客户端 -> 服务端
	EventUserConnected   EventType = "user_connected"   // payload: userId string (also broadcast back)
	EventUpdateActivity  EventType = "update_activity"  // payload: ActivityData
	EventSendMessage     EventType = "send_message"     // payload: SendMessageData
	EventRequestPresence EventType = "request_presence" // no payload

	// 服务端 -> 客户端
	EventUsersOnline      EventType = "users_online"      // payload: []string
	EventActivities       EventType = "activities"        // payload: [][2]string or map[string]string
	EventUserDisconnected EventType = "user_disconnected" // payload: userId string
	EventActivityUpdated  EventType = "activity_updated"  // payload: ActivityData
	EventReceiveMessage   EventType = "receive_message"   // payload: MessageData
	EventMessageSent      EventType = "message_sent"      // payload: MessageData
	EventNewNotification  EventType = "new_notification"  // payload: model.Notification
	EventError            EventType = "error"             // payload: ErrorData
)

// Event is the envelope carried by every frame in both directions.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ActivityData 活动状态数据
type ActivityData struct {
	UserID   string `json:"userId"`
	Activity string `json:"activity"`
}

// SendMessageData 发送消息数据. ClientID is echoed back on message_sent.
type SendMessageData struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	ClientID   string `json:"clientId,omitempty"`
}

// MessageData is a stored message as pushed by the server.
type MessageData struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientID   string    `json:"clientId,omitempty"`
}

// ErrorData 错误消息数据
type ErrorData struct {
	Message string `json:"message"`
}

// NewEvent marshals payload into a timestamped envelope. A nil payload leaves Data empty.
func NewEvent(t EventType, payload interface{}) (Event, error) {
	evt := Event{Type: t, Timestamp: time.Now().UnixMilli()}
	if payload == nil {
		return evt, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	evt.Data = data
	return evt, nil
}

// MustEvent is NewEvent for payloads that cannot fail to marshal.
func MustEvent(t EventType, payload interface{}) Event {
	evt, err := NewEvent(t, payload)
	if err != nil {
		panic(err)
	}
	return evt
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}
