package model

import (
	"github.com/LeonardoBeccarini/trackside_sim/internal/model/entities"
	"github.com/LeonardoBeccarini/trackside_sim/internal/model/messages"
)

// Aliases exposing the common types to the other packages.

type (
	PinState        = entities.PinState
	Event           = entities.Event
	EventKind       = entities.EventKind
	PinStateChanged = messages.PinStateChanged
)

const (
	PinUp   = entities.PinUp
	PinDown = entities.PinDown

	EventWait       = entities.EventWait
	EventTransition = entities.EventTransition
)

var (
	ParsePinState = entities.ParsePinState
	Wait          = entities.Wait
	Gate          = entities.Gate
	Transition    = entities.Transition
)
