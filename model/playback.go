package model

import "fmt"

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// ParseRepeatMode validates a repeat mode coming from config or the wire.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(s) {
	case RepeatOff, RepeatOne, RepeatAll:
		return RepeatMode(s), nil
	case "":
		return RepeatOff, nil
	}
	return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
}

// Next returns the mode that follows m in the off -> one -> all cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// PersistentPlayback is the subset of playback state that survives a reload.
// It is stored under the "player-storage" key.
type PersistentPlayback struct {
	CurrentTrack *Track  `json:"currentSong"`
	Queue        []Track `json:"queue"`
	CurrentIndex int     `json:"currentIndex"`
	IsPlaying    bool    `json:"isPlaying"`
}

// Valid reports whether the record satisfies the index/track invariant.
func (p *PersistentPlayback) Valid() bool {
	if p == nil {
		return false
	}
	if p.CurrentIndex == -1 {
		return p.CurrentTrack == nil
	}
	if p.CurrentIndex < 0 || p.CurrentIndex >= len(p.Queue) || p.CurrentTrack == nil {
		return false
	}
	return p.Queue[p.CurrentIndex].ID == p.CurrentTrack.ID
}

// SessionPlayback is reset on every track change and never persisted.
type SessionPlayback struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
}

// PlaybackState is the single authoritative "what is playing" view.
type PlaybackState struct {
	CurrentTrack *Track     `json:"currentSong"`
	CurrentIndex int        `json:"currentIndex"`
	IsPlaying    bool       `json:"isPlaying"`
	Shuffle      bool       `json:"isShuffle"`
	Repeat       RepeatMode `json:"repeatMode"`
	Volume       float64    `json:"volume"`
	SessionPlayback
}

// Clone returns a copy that shares nothing with s.
func (s PlaybackState) Clone() PlaybackState {
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	return s
}
