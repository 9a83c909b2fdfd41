// Package recorder journals every commanded pin transition to InfluxDB so a
// test run can be lined up against the controller's own logs afterwards.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
)

const (
	DefaultMeasurement = "pin_transition"
	DefaultQueueSize   = 1024

	flushTimeout = 5 * time.Second
)

// PointWriter is the subset of api.WriteAPIBlocking the journal needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// BreakerSettings mirrors the knobs used for every upstream breaker.
type BreakerSettings struct {
	Fails    int
	Open     time.Duration
	Interval time.Duration
}

var DefaultBreaker = BreakerSettings{Fails: 3, Open: 30 * time.Second, Interval: time.Minute}

// Journal queues records from the playback goroutine and writes them on
// its own goroutine. Playback never waits on InfluxDB: a full queue drops
// the record and an open breaker skips the write.
type Journal struct {
	writer      PointWriter
	breaker     BreakerSettings
	cb          *gobreaker.CircuitBreaker
	queue       chan sequencer.Record
	measurement string
	target      string
	logger      *slog.Logger
	onError     func(error)

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
	lastErr atomic.Int64 // unix nanos, 0 = never
}

type Option func(*Journal)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

// WithTarget tags every point with the simulated target.
func WithTarget(target string) Option {
	return func(j *Journal) { j.target = target }
}

func WithMeasurement(name string) Option {
	return func(j *Journal) {
		if name != "" {
			j.measurement = name
		}
	}
}

func WithQueueSize(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.queue = make(chan sequencer.Record, n)
		}
	}
}

func WithBreaker(s BreakerSettings) Option {
	return func(j *Journal) { j.breaker = s }
}

// WithErrorHook is called for every record that could not be stored.
func WithErrorHook(fn func(error)) Option {
	return func(j *Journal) { j.onError = fn }
}

func New(w PointWriter, opts ...Option) *Journal {
	j := &Journal{
		writer:      w,
		queue:       make(chan sequencer.Record, DefaultQueueSize),
		measurement: DefaultMeasurement,
		breaker:     DefaultBreaker,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.cb = mkCB("influx-journal", j.breaker, j.logger)
	return j
}

func mkCB(name string, s BreakerSettings, logger *slog.Logger) *gobreaker.CircuitBreaker {
	fails := s.Fails
	if fails < 1 {
		fails = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: s.Interval,
		Timeout:  s.Open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Record enqueues r without blocking. It is meant to be installed as the
// sequencer's transition hook.
func (j *Journal) Record(r sequencer.Record) {
	select {
	case j.queue <- r:
	default:
		j.dropped.Add(1)
		j.fail(errors.New("journal queue full"))
	}
}

// Run writes queued records until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case r := <-j.queue:
			j.write(ctx, r)
		case <-ctx.Done():
			j.drain()
			return
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case r := <-j.queue:
			j.write(ctx, r)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, r sequencer.Record) {
	p := j.Point(r)
	_, err := j.cb.Execute(func() (any, error) {
		return nil, j.writer.WritePoint(ctx, p)
	})
	if err != nil {
		j.failed.Add(1)
		j.fail(err)
		return
	}
	j.written.Add(1)
}

func (j *Journal) fail(err error) {
	j.lastErr.Store(time.Now().UnixNano())
	j.logger.Debug("journal write skipped", "error", err)
	if j.onError != nil {
		j.onError(err)
	}
}

// Point converts a record into its line-protocol point.
func (j *Journal) Point(r sequencer.Record) *write.Point {
	tags := map[string]string{
		"session": r.SessionID,
		"pin":     strconv.Itoa(r.Pin),
		"state":   string(r.State),
	}
	if j.target != "" {
		tags["target"] = j.target
	}
	fields := map[string]any{
		"seq":       int64(r.Seq),
		"iteration": r.Iteration,
		"cursor":    r.Cursor,
		"scale":     r.Scale,
		"offset_ms": r.Offset.Milliseconds(),
	}
	return influxdb2.NewPoint(j.measurement, tags, fields, r.At)
}

// Stats reports how many records were written, dropped on a full queue and
// rejected by InfluxDB or the breaker.
func (j *Journal) Stats() (written, dropped, failed uint64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}

// LastError returns when a record was last lost, or the zero time.
func (j *Journal) LastError() time.Time {
	ns := j.lastErr.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// BreakerState reports the breaker state, for status pages.
func (j *Journal) BreakerState() string { return j.cb.State().String() }

// InfluxConfig identifies the bucket the journal writes to.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// DialInflux returns a blocking writer for cfg and a function closing the
// client.
func DialInflux(cfg InfluxConfig) (PointWriter, func()) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.Close
}
