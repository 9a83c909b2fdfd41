package trigger

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/trackside_sim/pkg/rabbitmq"
)

func TestManualQueuesFires(t *testing.T) {
	m := NewManual(2)
	assert.True(t, m.Fire())
	assert.True(t, m.Fire())
	assert.False(t, m.Fire(), "queue full")
	assert.Equal(t, 2, m.Pending())

	ctx := context.Background()
	require.NoError(t, m.Await(ctx))
	require.NoError(t, m.Await(ctx))
	assert.Equal(t, 0, m.Pending())
}

func TestManualAwaitHonoursContext(t *testing.T) {
	m := NewManual(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Await(ctx), context.DeadlineExceeded)
}

func TestManualCloseDrainsFirst(t *testing.T) {
	m := NewManual(4)
	m.Fire()
	m.Close()
	assert.False(t, m.Fire())

	ctx := context.Background()
	assert.NoError(t, m.Await(ctx))
	assert.ErrorIs(t, m.Await(ctx), ErrClosed)
}

func TestManualAwaitUnblocksOnFire(t *testing.T) {
	m := NewManual(1)
	done := make(chan error, 1)
	go func() { done <- m.Await(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	m.Fire()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Fire")
	}
}

func TestPromptReadsLinesUntilEOF(t *testing.T) {
	var out strings.Builder
	p := NewPrompt(strings.NewReader("\n\n"), &out, "")
	ctx := context.Background()

	require.NoError(t, p.Await(ctx))
	require.NoError(t, p.Await(ctx))
	assert.ErrorIs(t, p.Await(ctx), ErrClosed)
	assert.ErrorIs(t, p.Await(ctx), ErrClosed)
	assert.Equal(t, strings.Repeat(DefaultPrompt, 4), out.String())

	// the reader goroutine is gone once the input ended
	_, open := <-p.lines
	assert.False(t, open)
}

func TestPromptReportsReadError(t *testing.T) {
	broken := errors.New("tty hung up")
	p := NewPrompt(iotest.ErrReader(broken), nil, "")
	ctx := context.Background()

	assert.ErrorIs(t, p.Await(ctx), broken)
	assert.ErrorIs(t, p.Await(ctx), broken)
	_, open := <-p.lines
	assert.False(t, open)
}

func TestPromptIsCancellable(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewPrompt(r, nil, "go?")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Await(ctx), context.Canceled)
}

type fakeMessage struct {
	id      uint16
	qos     byte
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return m.qos }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "trackside/step" }
func (m fakeMessage) MessageID() uint16 { return m.id }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeConsumer struct {
	mu      sync.Mutex
	handler rabbitmq.MessageHandler
	err     error
}

func (c *fakeConsumer) SetHandler(h rabbitmq.MessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeConsumer) ConsumeMessage(ctx context.Context) error {
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return nil
}

func (c *fakeConsumer) deliver(m mqtt.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	_ = h("trackside/step", m)
}

func TestMQTTTriggerDropsRedeliveries(t *testing.T) {
	c := &fakeConsumer{}
	tr := NewMQTT(c, nil)

	c.deliver(fakeMessage{id: 7, qos: 1, payload: []byte("step")})
	c.deliver(fakeMessage{id: 7, qos: 1, payload: []byte("step")}) // redelivery
	c.deliver(fakeMessage{id: 8, qos: 1, payload: []byte("step")})
	c.deliver(fakeMessage{qos: 0, payload: []byte("step")})
	c.deliver(fakeMessage{qos: 0, payload: []byte("step")})

	assert.Equal(t, 4, tr.Pending())
}

func TestMQTTTriggerClosesWhenListenReturns(t *testing.T) {
	c := &fakeConsumer{err: errors.New("subscribe refused")}
	tr := NewMQTT(c, nil)

	assert.Error(t, tr.Listen(context.Background()))
	assert.ErrorIs(t, tr.Await(context.Background()), ErrClosed)
}
