package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"VibeMelody/model"

	bolt "go.etcd.io/bbolt"
)

var (
	playerBucket = []byte("player")
	playerKey    = []byte("player-storage")
)

// BoltStateStore keeps the persistent playback record in a local bbolt file.
type BoltStateStore struct {
	db *bolt.DB
}

// OpenBoltStateStore opens or creates the state file at path.
func OpenBoltStateStore(path string) (*BoltStateStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state file %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(playerBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("init state file: %w", err)
	}
	return &BoltStateStore{db: bdb}, nil
}

// Load returns (nil, nil) when nothing was saved.
func (s *BoltStateStore) Load(ctx context.Context) (*model.PersistentPlayback, error) {
	var p *model.PersistentPlayback
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(playerBucket).Get(playerKey)
		if data == nil {
			return nil
		}
		p = &model.PersistentPlayback{}
		return json.Unmarshal(data, p)
	})
	if err != nil {
		return nil, fmt.Errorf("load player state: %w", err)
	}
	return p, nil
}

// Save 保存播放状态
func (s *BoltStateStore) Save(ctx context.Context, p *model.PersistentPlayback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal player state: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(playerBucket).Put(playerKey, data)
	})
}

// Close 关闭状态文件
func (s *BoltStateStore) Close() error {
	return s.db.Close()
}
