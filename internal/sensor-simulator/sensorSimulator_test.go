package sensor_simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/trackside_sim/internal/config"
	"github.com/LeonardoBeccarini/trackside_sim/internal/logging"
	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
	"github.com/LeonardoBeccarini/trackside_sim/internal/testutil"
	"github.com/LeonardoBeccarini/trackside_sim/internal/timeline"
)

type fixture struct {
	clock *testutil.FakeClock
	sink  *testutil.RecordingSink
}

func newFixture() *fixture {
	clock := testutil.NewFakeClock()
	return &fixture{clock: clock, sink: testutil.NewRecordingSink(clock)}
}

func (f *fixture) opts(extra ...Option) []Option {
	return append([]Option{WithSink(f.sink), WithClock(f.clock)}, extra...)
}

func baseConfig(scenario string) *config.Config {
	c := config.Default()
	c.Target = "0"
	c.Scenario = scenario
	c.Playback.Iterations = 1
	return c
}

func newSim(t *testing.T, cfg *config.Config, opts ...Option) *SensorSimulator {
	t.Helper()
	s, err := NewSensorSimulator(context.Background(), cfg, logging.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func scrape(t *testing.T, s *SensorSimulator) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestMissingTargetFailsBeforePlayback(t *testing.T) {
	f := newFixture()
	cfg := baseConfig("broadway-walk")
	cfg.Target = ""

	_, err := NewSensorSimulator(context.Background(), cfg, logging.Nop(), f.opts()...)
	assert.ErrorIs(t, err, config.ErrMissingTarget)
	assert.Empty(t, f.sink.Writes())
}

func TestNeedsBrokerNarrowsConfig(t *testing.T) {
	tests := []struct {
		name     string
		sink     string
		trigger  string
		mode     sequencer.Mode
		injected bool
		want     bool
	}{
		{"gpiosim only", config.SinkGPIOSim, config.TriggerStdin, sequencer.ModeStep, false, false},
		{"mqtt sink", config.SinkMQTT, config.TriggerStdin, sequencer.ModeFixed, false, true},
		{"mqtt sink replaced", config.SinkMQTT, config.TriggerStdin, sequencer.ModeFixed, true, false},
		{"mqtt trigger in step mode", config.SinkGPIOSim, config.TriggerMQTT, sequencer.ModeStep, true, true},
		{"mqtt trigger unused outside step mode", config.SinkGPIOSim, config.TriggerMQTT, sequencer.ModeDecay, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig("quick-write")
			cfg.Sink = tt.sink
			cfg.Trigger.Source = tt.trigger
			s := &SensorSimulator{cfg: cfg, policy: sequencer.Policy{Mode: tt.mode}}
			if tt.injected {
				s.sink = newFixture().sink
			}
			assert.Equal(t, tt.want, s.needsBroker())
		})
	}
}

func TestBroadwayWalkSingleCycle(t *testing.T) {
	f := newFixture()
	s := newSim(t, baseConfig("broadway-walk"), f.opts()...)
	assert.Equal(t, sequencer.ModeFixed, s.Policy().Mode)
	assert.Equal(t, 10, s.Bank().Size())

	require.NoError(t, s.Start(context.Background()))

	writes := f.sink.Writes()
	require.Len(t, writes, 10+40)
	assert.Equal(t, testutil.Write{Pin: 9, State: model.PinUp, At: 30 * time.Second}, writes[10])
	assert.Equal(t, testutil.Write{Pin: 8, State: model.PinUp, At: 40 * time.Second}, writes[11])
	assert.Equal(t, testutil.Write{Pin: 9, State: model.PinDown, At: 42 * time.Second}, writes[12])
	assert.Equal(t, 288*time.Second, f.clock.Elapsed())

	// the run ends with every detector clear
	for pin, st := range s.Bank().Snapshot() {
		assert.Equal(t, model.PinDown, st, "pin %d", pin)
	}

	out := scrape(t, s)
	assert.Contains(t, out, "trackside_iterations_total 1")
	assert.Contains(t, out, `trackside_transitions_total{pin="9",state="up"} 2`)
	assert.Contains(t, out, `trackside_sequencer_state{state="stopped"} 1`)
}

func TestScenarioModeUnlessOverridden(t *testing.T) {
	f := newFixture()
	s := newSim(t, baseConfig("straight-speedup"), f.opts()...)
	assert.Equal(t, sequencer.ModeDecay, s.Policy().Mode)
	assert.Equal(t, sequencer.DefaultDecayRatio, s.Policy().Ratio)

	cfg := baseConfig("straight-speedup")
	cfg.Playback.Mode = "fixed"
	s = newSim(t, cfg, f.opts()...)
	assert.Equal(t, sequencer.ModeFixed, s.Policy().Mode)
}

func TestStraightSpeedupDecays(t *testing.T) {
	f := newFixture()
	cfg := baseConfig("straight-speedup")
	cfg.Playback.Iterations = 3
	s := newSim(t, cfg, f.opts()...)

	require.NoError(t, s.Start(context.Background()))

	// each cycle authors 12s of waits
	want := 12 * (1 + 0.9 + 0.81)
	assert.InDelta(t, want, f.clock.Elapsed().Seconds(), 1e-6)
	assert.InDelta(t, 0.729, s.Sequencer().Snapshot().Scale, 1e-12)
}

func TestPinsTooFewForScenario(t *testing.T) {
	cfg := baseConfig("broadway-walk")
	cfg.Pins = 4
	_, err := NewSensorSimulator(context.Background(), cfg, logging.Nop(), newFixture().opts()...)
	assert.ErrorIs(t, err, timeline.ErrPinOutOfRange)
}

func TestScenarioFileWithRestOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crossing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: crossing
pins: 3
mode: fixed
rest:
  2: up
steps:
  - {wait: 1, pin: 0, state: up}
  - {wait: 1, pin: 0, state: down}
`), 0o600))

	f := newFixture()
	s := newSim(t, baseConfig(path), f.opts()...)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, []testutil.Write{
		{Pin: 0, State: model.PinDown},
		{Pin: 1, State: model.PinDown},
		{Pin: 2, State: model.PinUp},
		{Pin: 0, State: model.PinUp},
		{Pin: 0, State: model.PinDown},
	}, f.sink.Pairs())
}

func TestSinkFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.sink.FailAt = 10 + 3
	f.sink.Err = errors.New("write /sys/...: device or resource busy")

	cfg := baseConfig("broadway-walk")
	cfg.Playback.Iterations = 0
	s := newSim(t, cfg, f.opts()...)

	err := s.Start(context.Background())
	var perr *sequencer.PlaybackError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 9, perr.Pin)
	assert.Len(t, f.sink.Writes(), 12)
	assert.Contains(t, scrape(t, s), `trackside_session_failures_total{phase="playback"} 1`)
}

type memWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (m *memWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, points...)
	return nil
}

func TestJournalRecordsEveryTransition(t *testing.T) {
	f := newFixture()
	w := &memWriter{}
	cfg := baseConfig("straight-speedup")
	cfg.Influx.Enabled = true
	s := newSim(t, cfg, f.opts(WithPointWriter(w))...)

	require.NoError(t, s.Start(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.points, 8)
	line := write.PointToLineProtocol(w.points[0], time.Second)
	assert.True(t, strings.HasPrefix(line, "pin_transition,pin=0,"), line)
	assert.Contains(t, line, "target=0")
}

func TestStepModeOverHTTP(t *testing.T) {
	f := newFixture()
	cfg := baseConfig("quick-write")
	cfg.Trigger.Source = config.TriggerHTTP
	cfg.Control.HTTPAddr = "127.0.0.1:0"
	s := newSim(t, cfg, f.opts()...)

	require.NotNil(t, s.Stepper())
	assert.True(t, s.Stepper().Fire())
	assert.True(t, s.Stepper().Fire())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []testutil.Write{
		{Pin: 0, State: model.PinDown}, {Pin: 1, State: model.PinDown}, {Pin: 2, State: model.PinDown},
		{Pin: 1, State: model.PinUp}, {Pin: 2, State: model.PinDown},
		{Pin: 1, State: model.PinDown}, {Pin: 2, State: model.PinUp},
	}, f.sink.Pairs())
	assert.Contains(t, scrape(t, s), "trackside_triggers_total 2")
}

func TestStepModeFromStdin(t *testing.T) {
	f := newFixture()
	var out bytes.Buffer
	cfg := baseConfig("quick-write")
	cfg.Playback.Iterations = 0
	s := newSim(t, cfg, f.opts(WithStdio(strings.NewReader("\n"), &out))...)

	// one line, then EOF: one toggle and a clean stop
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, f.sink.Writes(), 3+2)
	assert.Equal(t, 2, strings.Count(out.String(), "Press enter for a quick write:"))
	assert.Equal(t, sequencer.StateStopped, s.Sequencer().State())
}

func TestBusyControlPortFailsBeforePlayback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	f := newFixture()
	cfg := baseConfig("broadway-walk")
	cfg.Control.HTTPAddr = busy.Addr().String()
	s := newSim(t, cfg, f.opts()...)

	err = s.Start(context.Background())
	assert.ErrorContains(t, err, "control api")
	assert.Empty(t, f.sink.Writes())
}

func TestGPIOSimSinkFromConfig(t *testing.T) {
	root := t.TempDir()
	for pin := 0; pin < 3; pin++ {
		dir := filepath.Join(root, "gpiochip2", fmt.Sprintf("sim_gpio%d", pin))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pull"), nil, 0o644))
	}
	cfg := baseConfig("quick-write")
	cfg.Target = "2"
	cfg.GPIOSim.Root = root
	cfg.Playback.Mode = "fixed"
	s := newSim(t, cfg, WithClock(testutil.NewFakeClock()), WithStdio(strings.NewReader(""), io.Discard))

	require.NoError(t, s.Start(context.Background()))
	got, err := os.ReadFile(filepath.Join(root, "gpiochip2", "sim_gpio2", "pull"))
	require.NoError(t, err)
	assert.Equal(t, "pull-up", string(got))
}
