package cache

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const (
	presenceOnlineSet   = "presence:online_users" // Set: 在线用户集合
	presenceActivityKey = "presence:activities"   // Hash: userID -> activity label
)

// PresenceCache keeps the relay server's online set and activity labels in
// Redis so several relay processes share one view.
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache 创建在线状态缓存
func NewPresenceCache(client *redis.Client) *PresenceCache {
	return &PresenceCache{client: client}
}

// SetOnline 标记用户在线
func (c *PresenceCache) SetOnline(ctx context.Context, userID string) error {
	if c.client == nil {
		return errNotInitialized
	}
	return c.client.SAdd(ctx, presenceOnlineSet, userID).Err()
}

// SetOffline removes userID from the online set. The activity label stays.
func (c *PresenceCache) SetOffline(ctx context.Context, userID string) error {
	if c.client == nil {
		return errNotInitialized
	}
	return c.client.SRem(ctx, presenceOnlineSet, userID).Err()
}

// OnlineUsers 获取在线用户
func (c *PresenceCache) OnlineUsers(ctx context.Context) ([]string, error) {
	if c.client == nil {
		return nil, errNotInitialized
	}
	return c.client.SMembers(ctx, presenceOnlineSet).Result()
}

// SetActivity 更新用户活动
func (c *PresenceCache) SetActivity(ctx context.Context, userID, activity string) error {
	if c.client == nil {
		return errNotInitialized
	}
	return c.client.HSet(ctx, presenceActivityKey, userID, activity).Err()
}

// Activities 获取所有用户活动
func (c *PresenceCache) Activities(ctx context.Context) (map[string]string, error) {
	if c.client == nil {
		return nil, errNotInitialized
	}
	return c.client.HGetAll(ctx, presenceActivityKey).Result()
}

// Reset clears the online set, e.g. when the relay restarts with no
// connections. Activity labels are kept.
func (c *PresenceCache) Reset(ctx context.Context) error {
	if c.client == nil {
		return errNotInitialized
	}
	pipe := c.client.Pipeline()
	pipe.Del(ctx, presenceOnlineSet)
	_, err := pipe.Exec(ctx)
	return err
}
