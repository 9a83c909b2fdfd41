package trigger

import (
	"context"
	"sync"
)

// Manual is a trigger fired programmatically, e.g. from the control API or
// an MQTT subscription. Fires are queued up to a fixed depth.
type Manual struct {
	ch        chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// DefaultQueueDepth is the number of fires Manual buffers.
const DefaultQueueDepth = 16

// NewManual returns a Manual buffering up to depth pending fires.
func NewManual(depth int) *Manual {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Manual{
		ch:     make(chan struct{}, depth),
		closed: make(chan struct{}),
	}
}

// Fire queues one trigger. It reports false if the queue is full or the
// trigger is closed.
func (m *Manual) Fire() bool {
	select {
	case <-m.closed:
		return false
	default:
	}
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued fires.
func (m *Manual) Pending() int { return len(m.ch) }

// Close makes pending and future Await calls return ErrClosed once the
// queue is drained.
func (m *Manual) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

func (m *Manual) Await(ctx context.Context) error {
	select {
	case <-m.ch:
		return nil
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ch:
		return nil
	case <-m.closed:
		return ErrClosed
	}
}
