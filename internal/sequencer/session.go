package sequencer

import (
	"time"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/internal/timeline"
)

// session is the mutable state of one playback run. It is owned by the
// sequencer goroutine; readers only ever see a Snapshot.
type session struct {
	id        string
	timeline  *timeline.Timeline
	cursor    int
	iteration int
	scale     float64
	writes    uint64
	startedAt time.Time
	lastErr   error
}

func newSession(id string, tl *timeline.Timeline, now time.Time) *session {
	return &session{
		id:        id,
		timeline:  tl,
		scale:     1,
		startedAt: now,
	}
}

// Snapshot is a point-in-time copy of a playback session.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Timeline  string    `json:"timeline"`
	Mode      Mode      `json:"mode"`
	State     State     `json:"state"`
	Iteration int       `json:"iteration"` // completed cycles
	Cursor    int       `json:"cursor"`    // next event to execute
	Events    int       `json:"events"`
	Scale     float64   `json:"scale"`
	Writes    uint64    `json:"writes"` // timeline transitions written
	StartedAt time.Time `json:"started_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Record describes one completed timeline transition.
type Record struct {
	SessionID string
	Iteration int
	Cursor    int
	Seq       uint64 // 1-based transition count within the session
	Pin       int
	State     model.PinState
	Scale     float64
	At        time.Time
	Offset    time.Duration // since session start
}

// IterationInfo is reported after every completed cycle.
type IterationInfo struct {
	SessionID string
	Iteration int     // cycles completed so far
	Scale     float64 // scale applied to the next cycle
	Elapsed   time.Duration
}
