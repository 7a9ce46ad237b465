package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"VibeMelody/model"

	"github.com/go-redis/redis/v8"
)

const playerStateKey = "player-storage:%s" // String: PersistentPlayback JSON

// PlayerCache stores the persistent playback record of one user in Redis.
// It lets a listening session resume on another machine.
type PlayerCache struct {
	client *redis.Client
	key    string
}

// NewPlayerCache 创建播放器缓存
func NewPlayerCache(client *redis.Client, userID string) *PlayerCache {
	return &PlayerCache{client: client, key: fmt.Sprintf(playerStateKey, userID)}
}

// Load returns (nil, nil) when no record exists.
func (c *PlayerCache) Load(ctx context.Context) (*model.PersistentPlayback, error) {
	if c.client == nil {
		return nil, errNotInitialized
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get player state: %w", err)
	}

	var p model.PersistentPlayback
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player state: %w", err)
	}
	return &p, nil
}

// Save 保存播放状态（不过期）
func (c *PlayerCache) Save(ctx context.Context, p *model.PersistentPlayback) error {
	if c.client == nil {
		return errNotInitialized
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal player state: %w", err)
	}
	return c.client.Set(ctx, c.key, data, 0).Err()
}

// Clear 删除播放状态
func (c *PlayerCache) Clear(ctx context.Context) error {
	if c.client == nil {
		return errNotInitialized
	}
	return c.client.Del(ctx, c.key).Err()
}

func emptyProbe() *model.PersistentPlayback {
	t := model.Track{ID: "probe", Title: "probe"}
	return &model.PersistentPlayback{CurrentTrack: &t, Queue: []model.Track{t}, CurrentIndex: 0}
}
