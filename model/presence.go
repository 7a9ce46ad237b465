package model

// IdleActivity is announced when nothing is audible.
const IdleActivity = "Idle"

// PresenceEntry pairs a user with their last announced activity label.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	Activity string `json:"activity"`
}
