package relay

import (
	"context"
	"sync"
)

// PresenceStore is the relay's shared online set and activity map.
// cache.PresenceCache implements it over Redis.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	OnlineUsers(ctx context.Context) ([]string, error)
	SetActivity(ctx context.Context, userID, activity string) error
	Activities(ctx context.Context) (map[string]string, error)
}

// MemoryPresence is a process-local PresenceStore.
type MemoryPresence struct {
	mu         sync.RWMutex
	online     map[string]struct{}
	activities map[string]string
}

// NewMemoryPresence 创建内存在线状态
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		online:     make(map[string]struct{}),
		activities: make(map[string]string),
	}
}

func (p *MemoryPresence) SetOnline(ctx context.Context, userID string) error {
	p.mu.Lock()
	p.online[userID] = struct{}{}
	p.mu.Unlock()
	return nil
}

func (p *MemoryPresence) SetOffline(ctx context.Context, userID string) error {
	p.mu.Lock()
	delete(p.online, userID)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPresence) OnlineUsers(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	return out, nil
}

func (p *MemoryPresence) SetActivity(ctx context.Context, userID, activity string) error {
	p.mu.Lock()
	p.activities[userID] = activity
	p.mu.Unlock()
	return nil
}

func (p *MemoryPresence) Activities(ctx context.Context) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.activities))
	for k, v := range p.activities {
		out[k] = v
	}
	return out, nil
}
