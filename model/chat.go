package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is one direct message between two users.
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	SenderID   string    `json:"senderId" gorm:"size:64;index:idx_conversation,priority:1;not null"`
	ReceiverID string    `json:"receiverId" gorm:"size:64;index:idx_conversation,priority:2;not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// NewMessage 创建新消息
func NewMessage(senderID, receiverID, content string) *Message {
	return &Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}

// AssistantMessage is one turn of the local assistant conversation.
type AssistantMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AssistantRequest is the body posted to the assistant endpoint.
type AssistantRequest struct {
	Message string `json:"message"`
}

// AssistantResponse 助手回复
type AssistantResponse struct {
	Reply string `json:"reply"`
}
