package timeline

import (
	"fmt"
	"sort"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

const (
	up   = model.PinUp
	down = model.PinDown
)

func step(wait float64, pin int, state model.PinState) Step {
	return Step{Wait: wait, Pin: pin, State: state}
}

func gate(wait float64, pin int, state model.PinState) Step {
	return Step{Wait: wait, Pin: pin, State: state, Gate: true}
}

// Broadway station (GWSR): a train enters over detectors 9..4, runs round
// the loop on 0..5 and departs back out over 4..9.
var broadwayWalk = Scenario{
	Name:        "broadway-walk",
	Description: "train enters Broadway, runs round and departs; 10 detectors, 288s cycle",
	Pins:        10,
	Mode:        "fixed",
	Steps: []Step{
		// arrival
		step(30, 9, up),
		step(10, 8, up),
		step(2, 9, down),
		step(10, 7, up),
		step(2, 8, down),
		step(10, 6, up),
		step(2, 7, down),
		step(10, 5, up),
		step(2, 6, down),
		step(10, 4, up),
		step(2, 2, up),
		step(2, 5, down),
		step(2, 4, down),
		// run round
		step(30, 1, up),
		step(5, 0, up),
		step(5, 1, down),
		step(5, 1, up),
		step(5, 0, down),
		step(5, 3, up),
		step(5, 1, down),
		step(10, 4, up),
		step(5, 3, down),
		step(5, 5, up),
		step(5, 4, down),
		step(5, 4, up),
		step(5, 5, down),
		step(5, 4, down),
		// departure
		step(30, 4, up),
		step(2, 5, up),
		step(2, 2, down),
		step(2, 4, down),
		step(10, 6, up),
		step(2, 5, down),
		step(10, 7, up),
		step(2, 6, down),
		step(10, 8, up),
		step(2, 7, down),
		step(10, 9, up),
		step(2, 8, down),
		step(10, 9, down),
	},
}

// Four detectors on a straight, each occupied for half a dwell before the
// previous one clears. Meant for decay mode: the dwell shrinks every lap.
var straightSpeedup = Scenario{
	Name:        "straight-speedup",
	Description: "four-detector straight with overlapping occupancy; 2.0s dwell, use with decay mode",
	Pins:        4,
	Mode:        "decay",
	Steps: []Step{
		step(0, 0, up),
		step(1, 3, down),
		step(2, 1, up),
		step(1, 0, down),
		step(2, 2, up),
		step(1, 1, down),
		step(2, 3, up),
		step(1, 2, down),
	},
	Tail: 2,
}

// Pins 1 and 2 swap on each operator trigger, 0.1s apart.
var quickWrite = Scenario{
	Name:        "quick-write",
	Description: "pins 1 and 2 toggle in opposition on each trigger, 100ms apart",
	Pins:        3,
	Mode:        "step",
	Steps: []Step{
		gate(1, 1, up),
		step(0.1, 2, down),
		gate(1, 1, down),
		step(0.1, 2, up),
	},
}

var builtins = map[string]*Scenario{
	broadwayWalk.Name:    &broadwayWalk,
	straightSpeedup.Name: &straightSpeedup,
	quickWrite.Name:      &quickWrite,
}

// Builtin returns a copy of the named built-in scenario.
func Builtin(name string) (*Scenario, error) {
	s, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	cp := *s
	cp.Steps = append([]Step(nil), s.Steps...)
	if s.Rest != nil {
		cp.Rest = make(map[int]model.PinState, len(s.Rest))
		for k, v := range s.Rest {
			cp.Rest[k] = v
		}
	}
	return &cp, nil
}

// BuiltinNames lists the built-in scenarios, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the built-in scenario called ref, or loads ref as a
// scenario file.
func Resolve(ref string) (*Scenario, error) {
	if _, ok := builtins[ref]; ok {
		return Builtin(ref)
	}
	return LoadScenario(ref)
}
