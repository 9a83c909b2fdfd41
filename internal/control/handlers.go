package control

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
)

// Sequencer is the part of sequencer.Sequencer the API reads and stops.
type Sequencer interface {
	Snapshot() sequencer.Snapshot
	Stop()
}

// PinReader reports the mirrored pin states.
type PinReader interface {
	Snapshot() []model.PinState
}

// Stepper accepts step requests in step mode.
type Stepper interface {
	Fire() bool
	Pending() int
}

// JournalStats is implemented by the stimulus journal.
type JournalStats interface {
	Stats() (written, dropped, failed uint64)
	BreakerState() string
	LastError() time.Time
}

// Broker reports the MQTT connection; mqtt.Client satisfies it.
type Broker interface {
	IsConnectionOpen() bool
}

// readyErrorWindow is how long a lost journal record keeps /api/ready
// reporting degraded.
const readyErrorWindow = 30 * time.Second

type PinStatus struct {
	Pin   int            `json:"pin"`
	State model.PinState `json:"state"`
}

type JournalStatus struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Breaker string `json:"breaker"`
	// LastErrorAge is in seconds; absent when nothing was ever lost.
	LastErrorAge *float64 `json:"last_error_age_sec,omitempty"`
}

type ReadyResponse struct {
	Status          string `json:"status"` // ready, degraded or stopped
	Session         string `json:"session"`
	BrokerConnected *bool  `json:"broker_connected,omitempty"`
	JournalOK       *bool  `json:"journal_ok,omitempty"`
}

type StatusResponse struct {
	Session sequencer.Snapshot `json:"session"`
	Pins    []PinStatus        `json:"pins"`
	Journal *JournalStatus     `json:"journal,omitempty"`
}

// Handler serves the control API.
type Handler struct {
	seq     Sequencer
	pins    PinReader
	stepper Stepper
	journal JournalStats
	broker  Broker
	version string
}

func NewHandler(seq Sequencer, pins PinReader) *Handler {
	return &Handler{seq: seq, pins: pins}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleStatus returns the session snapshot and the pin mirror.
func (h *Handler) HandleStatus(c echo.Context) error {
	states := h.pins.Snapshot()
	resp := StatusResponse{
		Session: h.seq.Snapshot(),
		Pins:    make([]PinStatus, len(states)),
	}
	for i, st := range states {
		resp.Pins[i] = PinStatus{Pin: i, State: st}
	}
	if h.journal != nil {
		written, dropped, failed := h.journal.Stats()
		resp.Journal = &JournalStatus{
			Written: written,
			Dropped: dropped,
			Failed:  failed,
			Breaker: h.journal.BreakerState(),
		}
		if last := h.journal.LastError(); !last.IsZero() {
			age := time.Since(last).Seconds()
			resp.Journal.LastErrorAge = &age
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleReady answers 200 while the session is live and its dependencies
// are healthy, 503 otherwise.
func (h *Handler) HandleReady(c echo.Context) error {
	snap := h.seq.Snapshot()
	resp := ReadyResponse{Status: "ready", Session: snap.State.String()}
	if h.broker != nil {
		ok := h.broker.IsConnectionOpen()
		resp.BrokerConnected = &ok
		if !ok {
			resp.Status = "degraded"
		}
	}
	if h.journal != nil {
		last := h.journal.LastError()
		ok := h.journal.BreakerState() != "open" && (last.IsZero() || time.Since(last) > readyErrorWindow)
		resp.JournalOK = &ok
		if !ok {
			resp.Status = "degraded"
		}
	}
	if snap.State == sequencer.StateStopped {
		resp.Status = "stopped"
	}

	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// HandleStep queues one trigger for a step-mode session.
func (h *Handler) HandleStep(c echo.Context) error {
	if h.stepper == nil {
		return NewConflictError("session is not in step mode")
	}
	if !h.stepper.Fire() {
		return NewServiceUnavailableError("step queue is full or closed")
	}
	return c.JSON(http.StatusAccepted, map[string]int{"pending": h.stepper.Pending()})
}

// HandleStop asks the session to stop at its next safe point.
func (h *Handler) HandleStop(c echo.Context) error {
	h.seq.Stop()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "stopping"})
}
