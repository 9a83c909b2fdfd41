package entities

import (
	"fmt"
	"time"
)

// EventKind discriminates the two kinds of timeline event.
type EventKind int

const (
	EventWait EventKind = iota
	EventTransition
)

func (k EventKind) String() string {
	switch k {
	case EventWait:
		return "wait"
	case EventTransition:
		return "transition"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is either an inert delay or a single pin transition.
// Only the fields of its Kind are meaningful.
type Event struct {
	Kind EventKind

	// Wait
	Duration time.Duration
	Gate     bool // step mode blocks here on an external trigger

	// Transition
	Pin   int
	State PinState
}

// Wait builds a delay event.
func Wait(d time.Duration) Event {
	return Event{Kind: EventWait, Duration: d}
}

// Gate builds a delay event that is also a step-mode trigger point.
func Gate(d time.Duration) Event {
	return Event{Kind: EventWait, Duration: d, Gate: true}
}

// Transition builds a pin write event.
func Transition(pin int, state PinState) Event {
	return Event{Kind: EventTransition, Pin: pin, State: state}
}

func (e Event) String() string {
	if e.Kind == EventTransition {
		return fmt.Sprintf("transition(%d,%s)", e.Pin, e.State)
	}
	if e.Gate {
		return fmt.Sprintf("gate(%s)", e.Duration)
	}
	return fmt.Sprintf("wait(%s)", e.Duration)
}
