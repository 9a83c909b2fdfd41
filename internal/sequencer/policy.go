package sequencer

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how waits are played back.
type Mode string

const (
	// ModeFixed replays the timeline unchanged, forever.
	ModeFixed Mode = "fixed"
	// ModeDecay multiplies every wait by Ratio once more after each cycle.
	ModeDecay Mode = "decay"
	// ModeStep replaces waits with a block on an external trigger.
	ModeStep Mode = "step"
)

const (
	DefaultDecayRatio = 0.9

	// NoMinWait disables the decay floor: waits may shrink towards zero.
	NoMinWait time.Duration = 0
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFixed, ModeDecay, ModeStep:
		return m, nil
	}
	return "", fmt.Errorf("unknown playback mode %q (want fixed, decay or step)", s)
}

// Policy is chosen at configuration time and fixed for a session.
type Policy struct {
	Mode Mode

	// Ratio is the per-cycle multiplier in decay mode, in (0,1).
	Ratio float64

	// MinWait is the smallest scaled wait decay mode will play. A wait is
	// never raised above its authored value. NoMinWait means no floor.
	MinWait time.Duration
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeFixed, ModeStep:
	case ModeDecay:
		if !(p.Ratio > 0 && p.Ratio < 1) {
			return fmt.Errorf("decay ratio must be in (0,1), got %v", p.Ratio)
		}
	default:
		return fmt.Errorf("unknown playback mode %q", p.Mode)
	}
	if p.MinWait < 0 {
		return fmt.Errorf("minimum wait must not be negative, got %s", p.MinWait)
	}
	return nil
}

// nextScale is the scale factor for the cycle after one with scale.
func (p Policy) nextScale(scale float64) float64 {
	if p.Mode == ModeDecay {
		return scale * p.Ratio
	}
	return scale
}

// effective returns the wait actually played for an authored wait.
func (p Policy) effective(authored time.Duration, scale float64) time.Duration {
	if p.Mode != ModeDecay {
		return authored
	}
	d := time.Duration(float64(authored) * scale)
	if p.MinWait > 0 && d < p.MinWait {
		d = p.MinWait
		if d > authored {
			d = authored
		}
	}
	return d
}
