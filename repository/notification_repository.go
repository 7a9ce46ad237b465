package repository

import (
	"context"

	"VibeMelody/model"

	"gorm.io/gorm"
)

// NotificationRepository 通知数据访问接口
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// ListByUser returns the newest limit notifications of userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
}

type gormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository 创建 GORM 通知仓库
func NewGormNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *gormNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	var items []model.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkAllRead 标记全部已读
func (r *gormNotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}
