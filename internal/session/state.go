package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the connection state of the manager.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a read-only view of the manager at one transition.
type Snapshot struct {
	Generation uint64
	State      State
	ChainID    uint64
	SessionID  string
	Endpoint   string
	Err        error
	// ConnectedAt is when the session was opened; zero unless Connected.
	ConnectedAt time.Time
	UpdatedAt   time.Time
}

// Active reports whether the snapshot describes a live session.
func (s Snapshot) Active() bool { return s.State == Connected }

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := struct {
		Generation  uint64     `json:"generation"`
		State       State      `json:"state"`
		ChainID     uint64     `json:"chainId,omitempty"`
		SessionID   string     `json:"sessionId,omitempty"`
		Endpoint    string     `json:"endpoint,omitempty"`
		Error       string     `json:"error,omitempty"`
		ConnectedAt *time.Time `json:"connectedAt,omitempty"`
		UpdatedAt   time.Time  `json:"updatedAt"`
	}{
		Generation: s.Generation,
		State:      s.State,
		ChainID:    s.ChainID,
		SessionID:  s.SessionID,
		Endpoint:   s.Endpoint,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	if !s.ConnectedAt.IsZero() {
		out.ConnectedAt = &s.ConnectedAt
	}
	return json.Marshal(out)
}
