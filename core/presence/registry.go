package presence

import (
	"sort"
	"sync"

	"VibeMelody/core/realtime"
	"VibeMelody/logger"
	"VibeMelody/model"
)

// Registry keeps the presence projection current from a channel's events.
// It subscribes on construction and unsubscribes on Close.
type Registry struct {
	mu     sync.RWMutex
	state  State
	unsubs []func()
}

// NewRegistry subscribes to the presence events of ch.
func NewRegistry(ch realtime.Channel) *Registry {
	r := &Registry{state: NewState()}
	for _, t := range Events {
		r.unsubs = append(r.unsubs, ch.Subscribe(t, r.apply))
	}
	return r
}

func (r *Registry) apply(evt realtime.Event) {
	r.mu.Lock()
	next, err := Reduce(r.state, evt)
	r.state = next
	r.mu.Unlock()
	if err != nil {
		logger.Warn("presence event ignored",
			logger.String("type", string(evt.Type)),
			logger.ErrorField(err))
	}
}

// Close stops listening to the channel.
func (r *Registry) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// Reset clears the projection, e.g. on sign-out.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.state = NewState()
	r.mu.Unlock()
}

// State returns the current projection. Callers must not mutate its maps.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// OnlineUsers returns the online ids in sorted order.
func (r *Registry) OnlineUsers() []string {
	s := r.State()
	out := make([]string, 0, len(s.Online))
	for id := range s.Online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsOnline 判断用户是否在线
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.State().Online[userID]
	return ok
}

// Activities returns a copy of the activity map.
func (r *Registry) Activities() map[string]string {
	return copyMap(r.State().Activities)
}

// Activity returns the last label of userID, or Idle when none was seen.
func (r *Registry) Activity(userID string) string {
	if a, ok := r.State().Activities[userID]; ok {
		return a
	}
	return model.IdleActivity
}

// Entries merges the online set and the activity map, sorted by user id.
func (r *Registry) Entries() []model.PresenceEntry {
	s := r.State()
	ids := make(map[string]struct{}, len(s.Online)+len(s.Activities))
	for id := range s.Online {
		ids[id] = struct{}{}
	}
	for id := range s.Activities {
		ids[id] = struct{}{}
	}

	out := make([]model.PresenceEntry, 0, len(ids))
	for id := range ids {
		_, online := s.Online[id]
		activity, ok := s.Activities[id]
		if !ok {
			activity = model.IdleActivity
		}
		out = append(out, model.PresenceEntry{UserID: id, Online: online, Activity: activity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
