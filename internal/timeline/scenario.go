package timeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

var (
	ErrPinOutOfRange = errors.New("pin index out of range")
	ErrNegativeWait  = errors.New("wait must be a finite, non-negative number of seconds")
	ErrInvalidState  = errors.New("invalid pin state")
	ErrEmptyScenario = errors.New("scenario has no steps")
)

// Step is one authored (wait, pin, state) triple: pause for Wait seconds,
// then command Pin to State. A Gate step marks its wait as a step-mode
// trigger point.
type Step struct {
	Wait  float64        `yaml:"wait" json:"wait"`
	Pin   int            `yaml:"pin" json:"pin"`
	State model.PinState `yaml:"state" json:"state"`
	Gate  bool           `yaml:"gate,omitempty" json:"gate,omitempty"`
}

// Scenario is the declarative description of one timeline.
type Scenario struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Pins        int                    `yaml:"pins,omitempty" json:"pins,omitempty"` // bank size, 0 = highest pin + 1
	Mode        string                 `yaml:"mode,omitempty" json:"mode,omitempty"` // preferred playback mode
	Rest        map[int]model.PinState `yaml:"rest,omitempty" json:"rest,omitempty"`
	Steps       []Step                 `yaml:"steps" json:"steps"`
	Tail        float64                `yaml:"tail,omitempty" json:"tail,omitempty"` // wait after the last step
}

// BankSize returns the bank size the scenario asks for: Pins when set,
// otherwise one more than the highest pin it references.
func (s *Scenario) BankSize() int {
	if s.Pins > 0 {
		return s.Pins
	}
	max := -1
	for _, st := range s.Steps {
		if st.Pin > max {
			max = st.Pin
		}
	}
	for pin := range s.Rest {
		if pin > max {
			max = pin
		}
	}
	return max + 1
}

// Build validates the scenario against a bank of bankSize pins and emits
// its timeline. Every step emits a wait, zero included, so step mode has a
// point to block on before each transition.
func (s *Scenario) Build(bankSize int) (*Timeline, error) {
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, ErrEmptyScenario)
	}
	if bankSize <= 0 {
		bankSize = s.BankSize()
	}

	events := make([]model.Event, 0, 2*len(s.Steps)+1)
	for i, st := range s.Steps {
		d, err := seconds(st.Wait)
		if err != nil {
			return nil, fmt.Errorf("scenario %q step %d: %w", s.Name, i, err)
		}
		if st.Pin < 0 || st.Pin >= bankSize {
			return nil, fmt.Errorf("scenario %q step %d: %w: %d (bank size %d)", s.Name, i, ErrPinOutOfRange, st.Pin, bankSize)
		}
		if !st.State.Valid() {
			return nil, fmt.Errorf("scenario %q step %d: %w: %q", s.Name, i, ErrInvalidState, st.State)
		}
		if st.Gate {
			events = append(events, model.Gate(d))
		} else {
			events = append(events, model.Wait(d))
		}
		events = append(events, model.Transition(st.Pin, st.State))
	}

	tail, err := seconds(s.Tail)
	if err != nil {
		return nil, fmt.Errorf("scenario %q tail: %w", s.Name, err)
	}
	if tail > 0 {
		events = append(events, model.Wait(tail))
	}

	for pin, st := range s.Rest {
		if pin < 0 || pin >= bankSize {
			return nil, fmt.Errorf("scenario %q rest: %w: %d", s.Name, ErrPinOutOfRange, pin)
		}
		if !st.Valid() {
			return nil, fmt.Errorf("scenario %q rest pin %d: %w: %q", s.Name, pin, ErrInvalidState, st)
		}
	}

	return New(s.Name, events), nil
}

// RestPins lists the pins with a rest override, sorted.
func (s *Scenario) RestPins() []int {
	pins := make([]int, 0, len(s.Rest))
	for pin := range s.Rest {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

func seconds(v float64) (time.Duration, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: %v", ErrNegativeWait, v)
	}
	return time.Duration(v * float64(time.Second)), nil
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	for i := range s.Steps {
		st, err := model.ParsePinState(string(s.Steps[i].State))
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		s.Steps[i].State = st
	}
	for pin, raw := range s.Rest {
		st, err := model.ParsePinState(string(raw))
		if err != nil {
			return nil, fmt.Errorf("rest pin %d: %w", pin, err)
		}
		s.Rest[pin] = st
	}
	return &s, nil
}

// LoadScenario reads a YAML scenario file. The file name is used when the
// scenario has no name of its own.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ParseScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}
