// Package pinbank mirrors the commanded state of a fixed set of pins and
// forwards every write to an injected PinSink.
package pinbank

import (
	"errors"
	"fmt"
	"sync"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

var (
	ErrPinOutOfRange = errors.New("pin index out of range")
	ErrInvalidState  = errors.New("invalid pin state")
	ErrBankSize      = errors.New("bank size must be positive")
)

// PinSink performs the actual state assertion for a pin. Every call is an
// externally observable event.
type PinSink interface {
	Write(pin int, state model.PinState) error
}

// SinkFunc adapts a plain function to PinSink.
type SinkFunc func(pin int, state model.PinState) error

func (f SinkFunc) Write(pin int, state model.PinState) error { return f(pin, state) }

// WriteError reports a sink failure for one pin.
type WriteError struct {
	Pin   int
	State model.PinState
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write pin %d %s: %v", e.Pin, e.State, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Bank is the in-memory mirror of a pin bank. The mirror changes only after
// the sink accepted a write.
type Bank struct {
	sink PinSink

	mu     sync.RWMutex
	states []model.PinState
	rest   []model.PinState
}

// Option configures a Bank.
type Option func(*Bank)

// WithRest overrides the rest state of individual pins. Pins not listed
// rest at down. Out-of-range entries are ignored.
func WithRest(rest map[int]model.PinState) Option {
	return func(b *Bank) {
		for pin, st := range rest {
			if pin >= 0 && pin < len(b.rest) {
				b.rest[pin] = st
			}
		}
	}
}

// New creates a bank of size pins writing through sink.
func New(size int, sink PinSink, opts ...Option) (*Bank, error) {
	if size <= 0 {
		return nil, ErrBankSize
	}
	if sink == nil {
		return nil, errors.New("pinbank: nil sink")
	}
	b := &Bank{
		sink:   sink,
		states: make([]model.PinState, size),
		rest:   make([]model.PinState, size),
	}
	for i := range b.rest {
		b.rest[i] = model.PinDown
		b.states[i] = model.PinDown
	}
	for _, opt := range opts {
		opt(b)
	}
	for i, st := range b.rest {
		if !st.Valid() {
			return nil, fmt.Errorf("rest state of pin %d: %w: %q", i, ErrInvalidState, st)
		}
	}
	return b, nil
}

// Size returns the number of pins.
func (b *Bank) Size() int { return len(b.states) }

// Write validates the request, performs it through the sink and, on
// success, records the new state. A failed write leaves the mirror alone.
func (b *Bank) Write(pin int, state model.PinState) error {
	if pin < 0 || pin >= len(b.states) {
		return fmt.Errorf("%w: %d (bank size %d)", ErrPinOutOfRange, pin, len(b.states))
	}
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	if err := b.sink.Write(pin, state); err != nil {
		return &WriteError{Pin: pin, State: state, Err: err}
	}
	b.mu.Lock()
	b.states[pin] = state
	b.mu.Unlock()
	return nil
}

// Reset drives every pin to its rest state exactly once, in index order.
// It stops at the first failure.
func (b *Bank) Reset() error {
	for pin := range b.rest {
		if err := b.Write(pin, b.rest[pin]); err != nil {
			return err
		}
	}
	return nil
}

// Rest returns the rest state of pin.
func (b *Bank) Rest(pin int) (model.PinState, error) {
	if pin < 0 || pin >= len(b.rest) {
		return "", fmt.Errorf("%w: %d", ErrPinOutOfRange, pin)
	}
	return b.rest[pin], nil
}

// State returns the last successfully commanded state of pin.
func (b *Bank) State(pin int) (model.PinState, error) {
	if pin < 0 || pin >= len(b.states) {
		return "", fmt.Errorf("%w: %d", ErrPinOutOfRange, pin)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.states[pin], nil
}

// Snapshot returns a copy of all mirrored states, indexed by pin.
func (b *Bank) Snapshot() []model.PinState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.PinState, len(b.states))
	copy(out, b.states)
	return out
}
