// Package sensor_simulator assembles a playback session from configuration:
// pin sink, bank, timeline, trigger, metrics, journal and control surfaces.
package sensor_simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/trackside_sim/internal/config"
	"github.com/LeonardoBeccarini/trackside_sim/internal/control"
	"github.com/LeonardoBeccarini/trackside_sim/internal/metrics"
	"github.com/LeonardoBeccarini/trackside_sim/internal/pinbank"
	"github.com/LeonardoBeccarini/trackside_sim/internal/recorder"
	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
	"github.com/LeonardoBeccarini/trackside_sim/internal/timeline"
	"github.com/LeonardoBeccarini/trackside_sim/internal/trigger"
	"github.com/LeonardoBeccarini/trackside_sim/pkg/rabbitmq"
)

// SensorSimulator drives one bank of simulated occupancy sensors through a
// scenario.
type SensorSimulator struct {
	cfg    *config.Config
	logger *slog.Logger

	scenario *timeline.Scenario
	bankSize int
	timeline *timeline.Timeline
	policy   sequencer.Policy
	bank     *pinbank.Bank
	seq      *sequencer.Sequencer
	metrics  *metrics.Metrics
	journal  *recorder.Journal
	health   *control.Health
	control  *control.Server

	stepper     control.Stepper
	mqttTrigger *trigger.MQTT

	// injected or owned resources
	sink        pinbank.PinSink
	mqttSink    *pinbank.MQTTSink
	client      mqtt.Client
	ownsClient  bool
	pointWriter recorder.PointWriter
	closeInflux func()
	clock       sequencer.Clock
	stdin       io.Reader
	stdout      io.Writer
	version     string
}

type Option func(*SensorSimulator)

// WithSink replaces the configured sink, e.g. with a recording fake.
func WithSink(sink pinbank.PinSink) Option {
	return func(s *SensorSimulator) { s.sink = sink }
}

// WithMQTTClient reuses an existing broker connection.
func WithMQTTClient(c mqtt.Client) Option {
	return func(s *SensorSimulator) { s.client = c }
}

// WithPointWriter replaces the InfluxDB writer of the journal.
func WithPointWriter(w recorder.PointWriter) Option {
	return func(s *SensorSimulator) { s.pointWriter = w }
}

func WithClock(c sequencer.Clock) Option {
	return func(s *SensorSimulator) { s.clock = c }
}

// WithStdio sets the terminal used by the stdin trigger.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *SensorSimulator) { s.stdin, s.stdout = in, out }
}

func WithVersion(v string) Option {
	return func(s *SensorSimulator) { s.version = v }
}

// NewSensorSimulator validates cfg and builds every component. Nothing is
// written to a pin until Start.
func NewSensorSimulator(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*SensorSimulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SensorSimulator{
		cfg:    cfg,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.buildTimeline(); err != nil {
		return nil, err
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.buildBank(); err != nil {
		s.Close()
		return nil, err
	}
	s.buildObservers()
	trig := s.buildTrigger()
	if err := s.buildSequencer(trig); err != nil {
		s.Close()
		return nil, err
	}
	s.buildControl()
	return s, nil
}

// Start runs the session and the auxiliary servers until the session ends.
// Listeners are bound before the first pin write so that a busy port is
// reported up front.
func (s *SensorSimulator) Start(ctx context.Context) error {
	var httpLis, grpcLis net.Listener
	var err error
	if s.control != nil {
		if httpLis, err = net.Listen("tcp", s.cfg.Control.HTTPAddr); err != nil {
			return fmt.Errorf("control api: %w", err)
		}
	}
	if s.health != nil {
		if grpcLis, err = net.Listen("tcp", s.cfg.Control.GRPCAddr); err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return fmt.Errorf("grpc health: %w", err)
		}
	}

	bgCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	goBackground := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("background task failed", "task", name, "error", err)
			}
		}()
	}

	if s.journal != nil {
		goBackground("journal", func(ctx context.Context) error {
			s.journal.Run(ctx)
			return nil
		})
	}
	if httpLis != nil {
		goBackground("control", func(ctx context.Context) error { return s.control.Serve(ctx, httpLis) })
	}
	if grpcLis != nil {
		goBackground("health", func(ctx context.Context) error { return s.health.Serve(ctx, grpcLis) })
	}
	if s.mqttTrigger != nil {
		goBackground("mqtt trigger", s.mqttTrigger.Listen)
	}

	runErr := s.seq.Run(ctx)
	var perr *sequencer.PlaybackError
	if errors.As(runErr, &perr) {
		s.metrics.ObserveFailure(perr.Phase)
	}

	cancel()
	wg.Wait()
	return runErr
}

// Stop asks the running session to stop at its next safe point.
func (s *SensorSimulator) Stop() { s.seq.Stop() }

// Close releases the broker connection and the InfluxDB client.
func (s *SensorSimulator) Close() {
	if s.closeInflux != nil {
		s.closeInflux()
		s.closeInflux = nil
	}
	if s.ownsClient && s.client != nil {
		rabbitmq.CloseRabbitMQConn(s.client, s.logger)
		s.client = nil
	}
}

func (s *SensorSimulator) Sequencer() *sequencer.Sequencer { return s.seq }
func (s *SensorSimulator) Bank() *pinbank.Bank             { return s.bank }
func (s *SensorSimulator) Timeline() *timeline.Timeline    { return s.timeline }
func (s *SensorSimulator) Policy() sequencer.Policy        { return s.policy }
func (s *SensorSimulator) Metrics() *metrics.Metrics       { return s.metrics }

// Stepper returns the step queue fed by the HTTP or MQTT trigger, or nil.
func (s *SensorSimulator) Stepper() control.Stepper { return s.stepper }
