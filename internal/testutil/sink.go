// Package testutil provides fakes shared by the package tests.
package testutil

import (
	"sync"
	"time"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

// Write is one call observed by RecordingSink.
type Write struct {
	Pin   int
	State model.PinState
	At    time.Duration // offset from the clock's start, if a clock is attached
}

// RecordingSink records every write. FailAt makes the n-th write (1-based)
// fail with Err.
type RecordingSink struct {
	mu     sync.Mutex
	writes []Write
	clock  *FakeClock

	FailAt int
	Err    error

	// OnWrite runs after a write is recorded, while no lock is held.
	OnWrite func(n int, w Write)
}

// NewRecordingSink returns a sink that stamps writes with clock's offset.
// clock may be nil.
func NewRecordingSink(clock *FakeClock) *RecordingSink {
	return &RecordingSink{clock: clock}
}

func (s *RecordingSink) Write(pin int, state model.PinState) error {
	s.mu.Lock()
	n := len(s.writes) + 1
	if s.FailAt > 0 && n == s.FailAt {
		s.mu.Unlock()
		return s.Err
	}
	w := Write{Pin: pin, State: state}
	if s.clock != nil {
		w.At = s.clock.Elapsed()
	}
	s.writes = append(s.writes, w)
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(n, w)
	}
	return nil
}

// Writes returns a copy of the recorded writes.
func (s *RecordingSink) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// Pairs returns the recorded writes without timestamps.
func (s *RecordingSink) Pairs() []Write {
	ws := s.Writes()
	for i := range ws {
		ws[i].At = 0
	}
	return ws
}
