package trigger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// DefaultPrompt is printed before every wait for the operator.
const DefaultPrompt = "Press enter for a quick write:"

// Prompt waits for the operator to press enter. Lines are read on a
// separate goroutine so that Await stays cancellable.
type Prompt struct {
	out     io.Writer
	message string

	once  sync.Once
	in    io.Reader
	lines chan struct{}
	err   error // terminal read error, set before lines is closed
}

// NewPrompt reads lines from in and writes message to out before each wait.
func NewPrompt(in io.Reader, out io.Writer, message string) *Prompt {
	if message == "" {
		message = DefaultPrompt
	}
	return &Prompt{in: in, out: out, message: message}
}

// start reads lines until the input ends, then records why and closes
// lines so every later Await sees the same error.
func (p *Prompt) start() {
	p.lines = make(chan struct{})
	go func() {
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- struct{}{}
		}
		p.err = sc.Err()
		if p.err == nil {
			p.err = ErrClosed
		}
		close(p.lines)
	}()
}

func (p *Prompt) Await(ctx context.Context) error {
	p.once.Do(p.start)
	if p.out != nil {
		fmt.Fprint(p.out, p.message)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-p.lines:
		if !ok {
			return p.err
		}
		return nil
	}
}
