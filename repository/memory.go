package repository

import (
	"context"
	"sort"
	"sync"

	"VibeMelody/model"
)

// MemoryStore implements every repository in process. It backs the relay
// server when no database is configured.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]model.User
	messages      []model.Message
	notifications []model.Notification
}

// NewMemoryStore 创建内存仓库
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]model.User)}
}

// Messages, Notifications and Users return the store under each interface.
func (s *MemoryStore) Messages() MessageRepository           { return memMessages{s} }
func (s *MemoryStore) Notifications() NotificationRepository { return memNotifications{s} }
func (s *MemoryStore) Users() UserRepository                 { return memUsers{s} }

type memMessages struct{ s *MemoryStore }

func (m memMessages) Create(ctx context.Context, msg *model.Message) error {
	m.s.mu.Lock()
	m.s.messages = append(m.s.messages, *msg)
	m.s.mu.Unlock()
	return nil
}

func (m memMessages) Conversation(ctx context.Context, a, b string, limit int) ([]model.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []model.Message
	for _, msg := range m.s.messages {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memNotifications struct{ s *MemoryStore }

func (m memNotifications) Create(ctx context.Context, n *model.Notification) error {
	m.s.mu.Lock()
	m.s.notifications = append(m.s.notifications, *n)
	m.s.mu.Unlock()
	return nil
}

func (m memNotifications) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []model.Notification
	for i := len(m.s.notifications) - 1; i >= 0; i-- {
		if n := m.s.notifications[i]; n.UserID == userID {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m memNotifications) MarkAllRead(ctx context.Context, userID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.notifications {
		if m.s.notifications[i].UserID == userID {
			m.s.notifications[i].IsRead = true
		}
	}
	return nil
}

type memUsers struct{ s *MemoryStore }

func (m memUsers) Upsert(ctx context.Context, user *model.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[user.ID]; !ok {
		m.s.users[user.ID] = *user
	}
	return nil
}

func (m memUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m memUsers) ListExcept(ctx context.Context, excludeID string) ([]model.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]model.User, 0, len(m.s.users))
	for id, u := range m.s.users {
		if id != excludeID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
