package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"VibeMelody/model"
)

// Assistant answers a prompt. core/api.Client implements it over REST.
type Assistant interface {
	AskAssistant(ctx context.Context, prompt string) (string, error)
}

// AssistantBuffer is the local assistant conversation. Append-only, no dedup.
type AssistantBuffer struct {
	mu       sync.RWMutex
	messages []model.AssistantMessage
}

// NewAssistantBuffer 创建助手会话缓冲区
func NewAssistantBuffer() *AssistantBuffer {
	return &AssistantBuffer{}
}

// Append 追加一条消息
func (b *AssistantBuffer) Append(role, content string) model.AssistantMessage {
	m := model.AssistantMessage{Role: role, Content: content, CreatedAt: time.Now()}
	b.mu.Lock()
	b.messages = append(b.messages, m)
	b.mu.Unlock()
	return m
}

// Ask records prompt, queries a, and records the reply. The prompt stays in
// the buffer when the assistant fails.
func (b *AssistantBuffer) Ask(ctx context.Context, a Assistant, prompt string) (model.AssistantMessage, error) {
	if strings.TrimSpace(prompt) == "" {
		return model.AssistantMessage{}, ErrEmptyContent
	}
	b.Append(model.RoleUser, prompt)
	reply, err := a.AskAssistant(ctx, prompt)
	if err != nil {
		return model.AssistantMessage{}, fmt.Errorf("ask assistant: %w", err)
	}
	return b.Append(model.RoleAssistant, reply), nil
}

// Messages returns a copy of the conversation.
func (b *AssistantBuffer) Messages() []model.AssistantMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.AssistantMessage(nil), b.messages...)
}

// Reset 清空会话
func (b *AssistantBuffer) Reset() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}
