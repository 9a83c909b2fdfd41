package messages

import (
	"time"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model/entities"
)

// PinStateChanged is published for every commanded pin transition.
type PinStateChanged struct {
	Target    string            `json:"target" msgpack:"target"`
	SessionID string            `json:"session_id" msgpack:"session_id"`
	Pin       int               `json:"pin" msgpack:"pin"`
	State     entities.PinState `json:"state" msgpack:"state"`
	Seq       uint64            `json:"seq" msgpack:"seq"` // per-sink write counter, starts at 1
	Timestamp time.Time         `json:"timestamp" msgpack:"timestamp"`
}
