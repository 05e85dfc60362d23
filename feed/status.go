package feed

import "time"

// State is the connection lifecycle state.
type State int32

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Status is a point-in-time snapshot of the feed session for status
// indicators and the ops surface.
type Status struct {
	State         string    `json:"state"`
	Connected     bool      `json:"connected"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	Uptime        string    `json:"uptime,omitempty"`
	Views         int       `json:"views"`
	Subscriptions int       `json:"subscriptions"`
	CachedEntries int       `json:"cached_entries"`
}
