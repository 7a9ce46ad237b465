package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VibeMelody/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient 是全局Redis客户端
var RedisClient *redis.Client

var errNotInitialized = errors.New("Redis client not initialized")

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// CheckRedis round-trips a player record through the cache for userID.
func CheckRedis(ctx context.Context, userID string) error {
	if RedisClient == nil {
		return errNotInitialized
	}

	store := NewPlayerCache(RedisClient, "healthcheck:"+userID)
	probe := emptyProbe()
	if err := store.Save(ctx, probe); err != nil {
		return err
	}
	got, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if got == nil || got.CurrentIndex != probe.CurrentIndex {
		return fmt.Errorf("unexpected player record from Redis: %+v", got)
	}
	return store.Clear(ctx)
}
