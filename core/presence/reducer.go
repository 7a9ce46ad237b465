// Package presence projects presence and activity events into an online set
// and a per-user activity map.
package presence

import (
	"encoding/json"
	"fmt"

	"VibeMelody/core/realtime"
)

// OnlineSet is the set of connected user ids.
type OnlineSet map[string]struct{}

// State is an immutable presence projection. Reduce never mutates its input.
type State struct {
	Online     OnlineSet
	Activities map[string]string
}

// NewState returns an empty projection.
func NewState() State {
	return State{Online: OnlineSet{}, Activities: map[string]string{}}
}

// Events lists every event type Reduce understands.
var Events = []realtime.EventType{
	realtime.EventUsersOnline,
	realtime.EventActivities,
	realtime.EventUserConnected,
	realtime.EventUserDisconnected,
	realtime.EventActivityUpdated,
}

// Reduce applies evt to s and returns the new state. Unknown events return s
// unchanged; a malformed payload returns s unchanged together with an error.
func Reduce(s State, evt realtime.Event) (State, error) {
	switch evt.Type {
	case realtime.EventUsersOnline:
		var ids []string
		if err := evt.Decode(&ids); err != nil {
			return s, err
		}
		online := make(OnlineSet, len(ids))
		for _, id := range ids {
			online[id] = struct{}{}
		}
		return State{Online: online, Activities: s.Activities}, nil

	case realtime.EventActivities:
		acts, err := decodeActivities(evt.Data)
		if err != nil {
			return s, fmt.Errorf("%s: %w", evt.Type, err)
		}
		return State{Online: s.Online, Activities: acts}, nil

	case realtime.EventUserConnected:
		var id string
		if err := evt.Decode(&id); err != nil {
			return s, err
		}
		if _, ok := s.Online[id]; ok {
			return s, nil
		}
		online := copySet(s.Online)
		online[id] = struct{}{}
		return State{Online: online, Activities: s.Activities}, nil

	case realtime.EventUserDisconnected:
		var id string
		if err := evt.Decode(&id); err != nil {
			return s, err
		}
		if _, ok := s.Online[id]; !ok {
			return s, nil
		}
		online := copySet(s.Online)
		delete(online, id)
		return State{Online: online, Activities: s.Activities}, nil

	case realtime.EventActivityUpdated:
		var data realtime.ActivityData
		if err := evt.Decode(&data); err != nil {
			return s, err
		}
		if data.UserID == "" {
			return s, fmt.Errorf("%s: missing userId", evt.Type)
		}
		acts := copyMap(s.Activities)
		acts[data.UserID] = data.Activity
		return State{Online: s.Online, Activities: acts}, nil
	}
	return s, nil
}

// decodeActivities accepts either [[userId, activity], ...] or {userId: activity}.
func decodeActivities(data json.RawMessage) (map[string]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	var pairs [][]string
	if err := json.Unmarshal(data, &pairs); err == nil {
		out := make(map[string]string, len(pairs))
		for _, p := range pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("activity pair of length %d", len(p))
			}
			out[p[0]] = p[1]
		}
		return out, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func copySet(s OnlineSet) OnlineSet {
	out := make(OnlineSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
