package model

import "fmt"

// Track is an immutable playable item. Several queue slots may hold the same ID.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ArtistID   string `json:"artistId,omitempty"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"imageUrl,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
	Duration   int    `json:"duration"` // seconds
}

// Label returns the presence label announced while the track is audible.
func (t Track) Label() string {
	return fmt.Sprintf("Playing %s by %s", t.Title, t.Artist)
}
