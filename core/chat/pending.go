package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingSend is an outbound message not yet acknowledged by message_sent.
type PendingSend struct {
	ClientID   string
	ReceiverID string
	Content    string
	SentAt     time.Time
}

// PendingTable tracks sends by a locally generated correlation id.
type PendingTable struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[string]PendingSend
	now     func() time.Time
}

// NewPendingTable creates a table whose entries expire after timeout.
// A non-positive timeout disables expiry.
func NewPendingTable(timeout time.Duration) *PendingTable {
	return &PendingTable{
		timeout: timeout,
		entries: make(map[string]PendingSend),
		now:     time.Now,
	}
}

// Add registers a send and returns its correlation id.
func (p *PendingTable) Add(receiverID, content string) string {
	id := uuid.New().String()
	p.mu.Lock()
	p.entries[id] = PendingSend{
		ClientID:   id,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     p.now(),
	}
	p.mu.Unlock()
	return id
}

// Remove drops an entry whose emit failed.
func (p *PendingTable) Remove(clientID string) {
	p.mu.Lock()
	delete(p.entries, clientID)
	p.mu.Unlock()
}

// Resolve acknowledges clientID. It reports false for unknown or expired ids.
func (p *PendingTable) Resolve(clientID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[clientID]; !ok {
		return false
	}
	delete(p.entries, clientID)
	return true
}

// Expire removes and returns entries older than the timeout as of now.
func (p *PendingTable) Expire(now time.Time) []PendingSend {
	if p.timeout <= 0 {
		return nil
	}
	p.mu.Lock()
	var out []PendingSend
	for id, e := range p.entries {
		if now.Sub(e.SentAt) >= p.timeout {
			out = append(out, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()
	sortBySentAt(out)
	return out
}

// Pending lists unacknowledged sends, oldest first.
func (p *PendingTable) Pending() []PendingSend {
	p.mu.Lock()
	out := make([]PendingSend, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.Unlock()
	sortBySentAt(out)
	return out
}

func sortBySentAt(s []PendingSend) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].SentAt.Equal(s[j].SentAt) {
			return s[i].ClientID < s[j].ClientID
		}
		return s[i].SentAt.Before(s[j].SentAt)
	})
}
