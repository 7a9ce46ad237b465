package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification 通知模型
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"userId,omitempty" gorm:"size:64;index;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	ImageURL  string    `json:"imageUrl,omitempty" gorm:"size:512"`
	IsRead    bool      `json:"isRead" gorm:"default:false"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// CreateNotificationRequest 推送通知请求
type CreateNotificationRequest struct {
	UserID   string `json:"userId"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// NewNotification 创建新通知
func NewNotification(req CreateNotificationRequest) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Content:   req.Content,
		ImageURL:  req.ImageURL,
		CreatedAt: time.Now(),
	}
}
