package sensor_simulator

import (
	"context"
	"fmt"

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

// QoS for pin writes and step triggers.
const qosAtLeastOnce = 1

func (s *SensorSimulator) buildTimeline() error {
	sc, err := timeline.Resolve(s.cfg.Scenario)
	if err != nil {
		return err
	}
	size := s.cfg.Pins
	if size == 0 {
		size = sc.BankSize()
	}
	tl, err := sc.Build(size)
	if err != nil {
		return err
	}

	mode := sequencer.ModeFixed
	switch {
	case s.cfg.Playback.Mode != "":
		mode, err = sequencer.ParseMode(s.cfg.Playback.Mode)
	case sc.Mode != "":
		mode, err = sequencer.ParseMode(sc.Mode)
	}
	if err != nil {
		return fmt.Errorf("scenario %q: %w", sc.Name, err)
	}

	s.scenario = sc
	s.bankSize = size
	s.timeline = tl
	s.policy = sequencer.Policy{
		Mode:    mode,
		Ratio:   s.cfg.Playback.DecayRatio,
		MinWait: s.cfg.Playback.MinWait,
	}
	return nil
}

// needsBroker narrows cfg.NeedsBroker to what this session will actually
// build: an injected sink replaces the MQTT one and the trigger only
// matters in step mode.
func (s *SensorSimulator) needsBroker() bool {
	if !s.cfg.NeedsBroker() {
		return false
	}
	if s.sink == nil && s.cfg.Sink == config.SinkMQTT {
		return true
	}
	return s.policy.Mode == sequencer.ModeStep && s.cfg.Trigger.Source == config.TriggerMQTT
}

func (s *SensorSimulator) connect(ctx context.Context) error {
	if s.client != nil || !s.needsBroker() {
		return nil
	}
	client, err := rabbitmq.NewRabbitMQConn(ctx, &s.cfg.MQTT.RabbitMQConfig, s.logger)
	if err != nil {
		return err
	}
	s.client = client
	s.ownsClient = true
	return nil
}

func (s *SensorSimulator) buildBank() error {
	if s.sink == nil {
		switch s.cfg.Sink {
		case config.SinkGPIOSim:
			s.sink = pinbank.NewGPIOSimSink(s.cfg.GPIOSim.Root, s.cfg.Target)
		case config.SinkMQTT:
			factory := func(topic string) rabbitmq.IPublisher {
				return rabbitmq.NewPublisher(s.client, topic, qosAtLeastOnce, true)
			}
			sink, err := pinbank.NewMQTTSink(s.cfg.Target, s.cfg.MQTT.TopicTemplate, s.cfg.MQTT.Codec, factory)
			if err != nil {
				return err
			}
			s.mqttSink = sink
			s.sink = sink
		}
	}
	bank, err := pinbank.New(s.bankSize, s.sink, pinbank.WithRest(s.scenario.Rest))
	if err != nil {
		return err
	}
	s.bank = bank
	return nil
}

func (s *SensorSimulator) buildObservers() {
	s.metrics = metrics.New()
	if s.cfg.Control.GRPCAddr != "" {
		s.health = control.NewHealth(s.logger)
	}
	if !s.cfg.Influx.Enabled {
		return
	}
	w := s.pointWriter
	if w == nil {
		w, s.closeInflux = recorder.DialInflux(recorder.InfluxConfig{
			URL:    s.cfg.Influx.URL,
			Token:  s.cfg.Influx.Token,
			Org:    s.cfg.Influx.Org,
			Bucket: s.cfg.Influx.Bucket,
		})
	}
	s.journal = recorder.New(w,
		recorder.WithLogger(s.logger),
		recorder.WithTarget(s.cfg.Target),
		recorder.WithMeasurement(s.cfg.Influx.Measurement),
		recorder.WithQueueSize(s.cfg.Influx.QueueSize),
		recorder.WithErrorHook(func(error) { s.metrics.ObserveJournalError() }),
	)
}

// buildTrigger returns nil outside step mode.
func (s *SensorSimulator) buildTrigger() trigger.Trigger {
	if s.policy.Mode != sequencer.ModeStep {
		return nil
	}
	var t trigger.Trigger
	switch s.cfg.Trigger.Source {
	case config.TriggerHTTP:
		m := trigger.NewManual(trigger.DefaultQueueDepth)
		s.stepper = m
		t = m
	case config.TriggerMQTT:
		consumer := rabbitmq.NewConsumer(s.client, s.cfg.Trigger.Topic, qosAtLeastOnce, s.logger)
		m := trigger.NewMQTT(consumer, s.logger)
		s.mqttTrigger = m
		s.stepper = m
		t = m
	default:
		t = trigger.NewPrompt(s.stdin, s.stdout, s.cfg.Trigger.Prompt)
	}
	return countingTrigger{next: t, onFire: s.metrics.ObserveTrigger}
}

func (s *SensorSimulator) buildSequencer(trig trigger.Trigger) error {
	opts := []sequencer.Option{
		sequencer.WithLogger(s.logger),
		sequencer.WithIterations(s.cfg.Playback.Iterations),
		sequencer.WithSessionStartHook(s.onSessionStart),
		sequencer.WithTransitionHook(s.onTransition),
		sequencer.WithIterationHook(s.metrics.ObserveIteration),
		sequencer.WithStateChangeCallback(s.onStateChange),
	}
	if s.clock != nil {
		opts = append(opts, sequencer.WithClock(s.clock))
	}
	if trig != nil {
		opts = append(opts, sequencer.WithTrigger(trig))
	}
	seq, err := sequencer.New(s.timeline, s.bank, s.policy, opts...)
	if err != nil {
		return fmt.Errorf("scenario %q: %w", s.scenario.Name, err)
	}
	s.seq = seq
	return nil
}

func (s *SensorSimulator) buildControl() {
	if s.cfg.Control.HTTPAddr == "" {
		return
	}
	opts := []control.Option{
		control.WithLogger(s.logger),
		control.WithMetrics(s.metrics.Handler()),
		control.WithVersion(s.version),
	}
	if s.stepper != nil {
		opts = append(opts, control.WithStepper(s.stepper))
	}
	if s.journal != nil {
		opts = append(opts, control.WithJournal(s.journal))
	}
	if s.client != nil {
		opts = append(opts, control.WithBroker(s.client))
	}
	s.control = control.NewServer(s.seq, s.bank, opts...)
}

func (s *SensorSimulator) onSessionStart(snap sequencer.Snapshot) {
	s.metrics.ObserveSessionStart(snap)
	if s.mqttSink != nil {
		s.mqttSink.SetSessionID(snap.SessionID)
	}
}

func (s *SensorSimulator) onTransition(r sequencer.Record) {
	s.metrics.ObserveTransition(r)
	if s.journal != nil {
		s.journal.Record(r)
	}
}

func (s *SensorSimulator) onStateChange(from, to sequencer.State) {
	s.metrics.ObserveState(to)
	if s.health != nil {
		s.health.ObserveState(to)
	}
	s.logger.Debug("state change", "from", from, "to", to)
}

// countingTrigger reports every accepted trigger.
type countingTrigger struct {
	next   trigger.Trigger
	onFire func()
}

func (c countingTrigger) Await(ctx context.Context) error {
	if err := c.next.Await(ctx); err != nil {
		return err
	}
	c.onFire()
	return nil
}
