package player

import (
	"context"

	"VibeMelody/model"
)

// StateStore persists the playback record that survives a reload.
// Load returns (nil, nil) when nothing has been saved.
type StateStore interface {
	Load(ctx context.Context) (*model.PersistentPlayback, error)
	Save(ctx context.Context, p *model.PersistentPlayback) error
}
