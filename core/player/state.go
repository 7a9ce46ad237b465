package player

import "VibeMelody/model"

// State is the engine's coarse state, derived from PlaybackState.
type State int

const (
	StateEmpty State = iota
	StateStopped
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// Direction selects the neighbour used by Advance.
type Direction int

const (
	Next Direction = iota
	Previous
)

func (d Direction) String() string {
	if d == Previous {
		return "previous"
	}
	return "next"
}

// stateOf derives the coarse state. Stopped is a loaded queue whose track has
// ended without wrap; Paused is a loaded track the user toggled off.
func stateOf(ps model.PlaybackState, queueLen int, stopped bool) State {
	switch {
	case queueLen == 0 || ps.CurrentTrack == nil:
		return StateEmpty
	case ps.IsPlaying:
		return StatePlaying
	case stopped:
		return StateStopped
	default:
		return StatePaused
	}
}
