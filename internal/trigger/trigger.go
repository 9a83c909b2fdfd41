// Package trigger provides the external step signals that gate playback in
// interactive mode.
package trigger

import (
	"context"
	"errors"
)

// ErrClosed is returned by Await once the source can no longer deliver
// triggers, e.g. stdin reached EOF.
var ErrClosed = errors.New("trigger source closed")

// Trigger blocks until the next external step signal.
type Trigger interface {
	Await(ctx context.Context) error
}
