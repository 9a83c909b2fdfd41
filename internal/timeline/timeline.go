// Package timeline holds the immutable event scripts replayed by the
// sequencer and the scenario tables they are built from.
package timeline

import (
	"time"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

// Timeline is an ordered, finite and immutable sequence of events
// representing one cycle of a scenario.
type Timeline struct {
	name   string
	events []model.Event
	gated  bool
	maxPin int
}

// New copies events into a Timeline. It does not validate pins against a
// bank; use Scenario.Build for that.
func New(name string, events []model.Event) *Timeline {
	t := &Timeline{
		name:   name,
		events: make([]model.Event, len(events)),
		maxPin: -1,
	}
	copy(t.events, events)
	for _, ev := range t.events {
		switch ev.Kind {
		case model.EventWait:
			if ev.Gate {
				t.gated = true
			}
		case model.EventTransition:
			if ev.Pin > t.maxPin {
				t.maxPin = ev.Pin
			}
		}
	}
	return t
}

func (t *Timeline) Name() string { return t.name }

// Len returns the number of events.
func (t *Timeline) Len() int { return len(t.events) }

// At returns the event at index i.
func (t *Timeline) At(i int) model.Event { return t.events[i] }

// Events returns a copy of the events.
func (t *Timeline) Events() []model.Event {
	out := make([]model.Event, len(t.events))
	copy(out, t.events)
	return out
}

// Gated reports whether any wait was authored as an explicit gate.
func (t *Timeline) Gated() bool { return t.gated }

// MaxPin returns the highest pin referenced, or -1 if none is.
func (t *Timeline) MaxPin() int { return t.maxPin }

// Transitions counts the transition events.
func (t *Timeline) Transitions() int {
	n := 0
	for _, ev := range t.events {
		if ev.Kind == model.EventTransition {
			n++
		}
	}
	return n
}

// Waits counts the wait events, gates included.
func (t *Timeline) Waits() int {
	n := 0
	for _, ev := range t.events {
		if ev.Kind == model.EventWait {
			n++
		}
	}
	return n
}

// CycleDuration is the sum of all authored waits.
func (t *Timeline) CycleDuration() time.Duration {
	var d time.Duration
	for _, ev := range t.events {
		if ev.Kind == model.EventWait {
			d += ev.Duration
		}
	}
	return d
}
