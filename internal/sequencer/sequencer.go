// Package sequencer replays a timeline against a pin bank in strict
// authoring order, looping until it is stopped.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/trackside_sim/internal/logging"
	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/internal/pinbank"
	"github.com/LeonardoBeccarini/trackside_sim/internal/timeline"
	"github.com/LeonardoBeccarini/trackside_sim/internal/trigger"
)

// Bank is the part of pinbank.Bank the sequencer drives.
type Bank interface {
	Size() int
	Reset() error
	Write(pin int, state model.PinState) error
}

// Sequencer executes one timeline against one bank. A Sequencer runs at
// most one session at a time; Run may be called again after it returned.
type Sequencer struct {
	timeline *timeline.Timeline
	bank     Bank
	policy   Policy

	clock         Clock
	trigger       trigger.Trigger
	logger        *slog.Logger
	maxIterations int
	newID         func() string

	onSessionStart func(Snapshot)
	onTransition   func(Record)
	onIteration    func(IterationInfo)
	onStateChange  func(from, to State)

	mu      sync.RWMutex
	state   State
	running bool
	session *session
	cancel  context.CancelFunc
}

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

func WithClock(c Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithTrigger sets the step source used in step mode.
func WithTrigger(t trigger.Trigger) Option {
	return func(s *Sequencer) { s.trigger = t }
}

// WithIterations stops the session cleanly after n completed cycles.
// Zero, the default, loops until cancelled.
func WithIterations(n int) Option {
	return func(s *Sequencer) { s.maxIterations = n }
}

// WithSessionIDs overrides the session ID generator.
func WithSessionIDs(fn func() string) Option {
	return func(s *Sequencer) { s.newID = fn }
}

// WithSessionStartHook is called once per Run, before rest initialization.
func WithSessionStartHook(fn func(Snapshot)) Option {
	return func(s *Sequencer) { s.onSessionStart = fn }
}

// WithTransitionHook is called on the playback goroutine after every
// successful timeline write. It must not block.
func WithTransitionHook(fn func(Record)) Option {
	return func(s *Sequencer) { s.onTransition = fn }
}

// WithIterationHook is called after every completed cycle.
func WithIterationHook(fn func(IterationInfo)) Option {
	return func(s *Sequencer) { s.onIteration = fn }
}

// WithStateChangeCallback is called after each state change.
func WithStateChangeCallback(fn func(from, to State)) Option {
	return func(s *Sequencer) { s.onStateChange = fn }
}

// New validates the policy against the timeline, checks every pin the
// timeline references fits the bank and returns an idle Sequencer.
func New(tl *timeline.Timeline, bank Bank, policy Policy, opts ...Option) (*Sequencer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if tl == nil || tl.Len() == 0 {
		return nil, ErrEmptyTimeline
	}
	s := &Sequencer{
		timeline: tl,
		bank:     bank,
		policy:   policy,
		clock:    SystemClock{},
		logger:   slog.Default(),
		newID:    uuid.NewString,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if top := tl.MaxPin(); top >= bank.Size() {
		return nil, fmt.Errorf("%w: pin %d, bank size %d", ErrPinOutOfRange, top, bank.Size())
	}
	if policy.Mode == ModeStep && s.trigger == nil {
		return nil, ErrNoTrigger
	}
	if policy.Mode == ModeStep && tl.Waits() == 0 {
		return nil, ErrNoWaits
	}
	if policy.Mode != ModeStep && tl.CycleDuration() == 0 && s.maxIterations == 0 {
		return nil, ErrZeroCycle
	}
	return s, nil
}

// State returns the current playback state.
func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Policy returns the playback policy.
func (s *Sequencer) Policy() Policy { return s.policy }

// Snapshot returns a copy of the current (or last) session.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Timeline: s.timeline.Name(),
		Mode:     s.policy.Mode,
		State:    s.state,
		Events:   s.timeline.Len(),
		Scale:    1,
	}
	if ss := s.session; ss != nil {
		snap.SessionID = ss.id
		snap.Iteration = ss.iteration
		snap.Cursor = ss.cursor
		snap.Scale = ss.scale
		snap.Writes = ss.writes
		snap.StartedAt = ss.startedAt
		if ss.lastErr != nil {
			snap.Error = ss.lastErr.Error()
		}
	}
	return snap
}

// Stop asks a running session to stop at its next safe point. An
// in-flight pin write always completes first.
func (s *Sequencer) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Run initializes the bank to rest and replays the timeline until ctx is
// done, Stop is called, the iteration limit is reached, the trigger source
// closes, or a write fails. Only the last case returns an error, a
// *PlaybackError.
func (s *Sequencer) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.session = newSession(s.newID(), s.timeline, s.clock.Now())
	sess := s.session
	s.mu.Unlock()
	defer cancel()

	s.setState(StateIdle)
	if s.onSessionStart != nil {
		s.onSessionStart(s.Snapshot())
	}

	s.logger.Info("session starting",
		"session", sess.id, "timeline", s.timeline.Name(), "mode", s.policy.Mode,
		"events", s.timeline.Len(), "cycle", s.timeline.CycleDuration())

	if err := s.bank.Reset(); err != nil {
		perr := &PlaybackError{Phase: PhaseInit, SessionID: sess.id, Cursor: -1, Err: err}
		var we *pinbank.WriteError
		if errors.As(err, &we) {
			perr.Pin, perr.State = we.Pin, we.State
		}
		return s.finish(perr)
	}

	s.setState(StateRunning)
	for {
		for s.cursor() < s.timeline.Len() {
			if ctx.Err() != nil {
				return s.finish(nil)
			}
			cursor := s.cursor()
			ev := s.timeline.At(cursor)

			switch ev.Kind {
			case model.EventWait:
				if err := s.wait(ctx, ev); err != nil {
					if ctx.Err() != nil || errors.Is(err, trigger.ErrClosed) {
						s.logger.Info("session stopping", "session", sess.id, "reason", err)
						return s.finish(nil)
					}
					return s.finish(&PlaybackError{
						Phase: PhaseTrigger, SessionID: sess.id,
						Iteration: s.iteration(), Cursor: cursor, Err: err,
					})
				}
			case model.EventTransition:
				if err := s.bank.Write(ev.Pin, ev.State); err != nil {
					return s.finish(&PlaybackError{
						Phase: PhasePlayback, SessionID: sess.id,
						Iteration: s.iteration(), Cursor: cursor,
						Pin: ev.Pin, State: ev.State, Err: err,
					})
				}
				s.transitioned(cursor, ev)
			}
			s.advance()
		}

		info := s.completeIteration()
		s.setState(StateIdle)
		s.logger.Debug("cycle complete", "session", sess.id, "iteration", info.Iteration, "next_scale", info.Scale)
		if s.onIteration != nil {
			s.onIteration(info)
		}
		if s.maxIterations > 0 && info.Iteration >= s.maxIterations {
			s.logger.Info("iteration limit reached", "session", sess.id, "iterations", info.Iteration)
			return s.finish(nil)
		}
		if ctx.Err() != nil {
			return s.finish(nil)
		}
		s.setState(StateRunning)
	}
}

func (s *Sequencer) wait(ctx context.Context, ev model.Event) error {
	s.setState(StateWaiting)
	defer s.setState(StateRunning)

	if s.policy.Mode == ModeStep && (ev.Gate || !s.timeline.Gated()) {
		s.logger.Log(ctx, logging.LevelTrace, "awaiting trigger", "cursor", s.cursor(), "gate", ev.Gate)
		if err := s.trigger.Await(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("await trigger: %w", err)
		}
		return nil
	}

	s.mu.RLock()
	scale := s.session.scale
	s.mu.RUnlock()
	d := s.policy.effective(ev.Duration, scale)
	s.logger.Log(ctx, logging.LevelTrace, "waiting", "cursor", s.cursor(), "authored", ev.Duration, "effective", d)
	return s.clock.Sleep(ctx, d)
}

func (s *Sequencer) transitioned(cursor int, ev model.Event) {
	now := s.clock.Now()
	s.mu.Lock()
	sess := s.session
	sess.writes++
	rec := Record{
		SessionID: sess.id,
		Iteration: sess.iteration,
		Cursor:    cursor,
		Seq:       sess.writes,
		Pin:       ev.Pin,
		State:     ev.State,
		Scale:     sess.scale,
		At:        now,
		Offset:    now.Sub(sess.startedAt),
	}
	s.mu.Unlock()

	s.logger.Debug("transition", "pin", ev.Pin, "state", ev.State, "iteration", rec.Iteration, "cursor", cursor)
	if s.onTransition != nil {
		s.onTransition(rec)
	}
}

func (s *Sequencer) cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.cursor
}

func (s *Sequencer) iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.iteration
}

func (s *Sequencer) advance() {
	s.mu.Lock()
	s.session.cursor++
	s.mu.Unlock()
}

func (s *Sequencer) completeIteration() IterationInfo {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	sess.cursor = 0
	sess.iteration++
	sess.scale = s.policy.nextScale(sess.scale)
	return IterationInfo{
		SessionID: sess.id,
		Iteration: sess.iteration,
		Scale:     sess.scale,
		Elapsed:   now.Sub(sess.startedAt),
	}
}

// finish moves to Stopped and returns err unchanged. A nil *PlaybackError
// must not leak out as a non-nil error interface.
func (s *Sequencer) finish(err *PlaybackError) error {
	s.mu.Lock()
	if err != nil {
		s.session.lastErr = err
	}
	s.cancel = nil
	s.running = false
	s.mu.Unlock()
	s.setState(StateStopped)

	if err != nil {
		s.logger.Error("session stopped", "session", err.SessionID, "error", err)
		return err
	}
	return nil
}

func (s *Sequencer) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to && s.onStateChange != nil {
		s.onStateChange(from, to)
	}
}
