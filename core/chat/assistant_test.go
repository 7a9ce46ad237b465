package chat

import (
	"context"
	"errors"
	"testing"

	"VibeMelody/model"
)

type assistantFunc func(ctx context.Context, prompt string) (string, error)

func (f assistantFunc) AskAssistant(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestAssistantBufferAsk(t *testing.T) {
	b := NewAssistantBuffer()
	echo := assistantFunc(func(_ context.Context, p string) (string, error) { return "re: " + p, nil })

	reply, err := b.Ask(context.Background(), echo, "play jazz")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Role != model.RoleAssistant || reply.Content != "re: play jazz" {
		t.Fatalf("reply = %+v", reply)
	}

	// no dedup: the same prompt twice is kept twice
	b.Ask(context.Background(), echo, "play jazz")
	if n := len(b.Messages()); n != 4 {
		t.Fatalf("buffer has %d messages, want 4", n)
	}
}

func TestAssistantBufferKeepsPromptOnFailure(t *testing.T) {
	b := NewAssistantBuffer()
	fail := assistantFunc(func(context.Context, string) (string, error) { return "", errors.New("down") })

	if _, err := b.Ask(context.Background(), fail, "hello"); err == nil {
		t.Fatal("expected error")
	}
	msgs := b.Messages()
	if len(msgs) != 1 || msgs[0].Role != model.RoleUser {
		t.Fatalf("buffer = %+v", msgs)
	}
	b.Reset()
	if len(b.Messages()) != 0 {
		t.Fatal("Reset kept messages")
	}
}
