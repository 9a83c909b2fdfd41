package entities

import (
	"fmt"
	"strings"
)

// PinState is the logical level commanded on a pin.
type PinState string

const (
	PinDown PinState = "down"
	PinUp   PinState = "up"
)

// ParsePinState accepts "up"/"down" (case-insensitive) and the gpio-sim
// spellings "pull-up"/"pull-down".
func ParsePinState(s string) (PinState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "pull-up":
		return PinUp, nil
	case "down", "pull-down":
		return PinDown, nil
	}
	return "", fmt.Errorf("invalid pin state %q", s)
}

// Valid reports whether s is one of the two logical levels.
func (s PinState) Valid() bool {
	return s == PinUp || s == PinDown
}

// Opposite returns the other level.
func (s PinState) Opposite() PinState {
	if s == PinUp {
		return PinDown
	}
	return PinUp
}
