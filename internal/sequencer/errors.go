package sequencer

import (
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

var (
	ErrAlreadyRunning = errors.New("sequencer is already running")
	ErrNoTrigger      = errors.New("step mode needs a trigger")
	ErrZeroCycle      = errors.New("timeline has no waits and would spin")
	ErrEmptyTimeline  = errors.New("timeline is empty")
	ErrNoWaits        = errors.New("step mode needs at least one wait to block on")
	ErrPinOutOfRange  = errors.New("timeline pin outside the bank")
)

// Phase names where a playback failure happened.
type Phase string

const (
	PhaseInit     Phase = "rest initialization"
	PhasePlayback Phase = "playback"
	PhaseTrigger  Phase = "trigger"
)

// PlaybackError is returned by Run when a session stops on a failure. It
// carries enough context to diagnose the run and restart it.
type PlaybackError struct {
	Phase     Phase
	SessionID string
	Iteration int
	Cursor    int // index of the failing event, -1 during initialization
	Pin       int
	State     model.PinState
	Err       error
}

func (e *PlaybackError) Error() string {
	switch e.Phase {
	case PhaseTrigger:
		return fmt.Sprintf("%s failed at iteration %d, event %d: %v", e.Phase, e.Iteration, e.Cursor, e.Err)
	case PhaseInit:
		return fmt.Sprintf("%s failed on pin %d -> %s: %v", e.Phase, e.Pin, e.State, e.Err)
	}
	return fmt.Sprintf("%s failed on pin %d -> %s at iteration %d, event %d: %v",
		e.Phase, e.Pin, e.State, e.Iteration, e.Cursor, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
