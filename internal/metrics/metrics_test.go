package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
)

func TestObserveTransition(t *testing.T) {
	m := New()
	m.ObserveTransition(sequencer.Record{Pin: 9, State: model.PinUp})
	m.ObserveTransition(sequencer.Record{Pin: 9, State: model.PinUp})
	m.ObserveTransition(sequencer.Record{Pin: 12, State: model.PinDown})

	assert.Equal(t, 2.0, promtest.ToFloat64(m.transitions.WithLabelValues("9", "up")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.transitions.WithLabelValues("12", "down")))
	assert.Equal(t, 2, promtest.CollectAndCount(m.transitions))
}

func TestObserveIterationTracksScale(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.scale))

	m.ObserveIteration(sequencer.IterationInfo{Iteration: 1, Scale: 0.9})
	m.ObserveIteration(sequencer.IterationInfo{Iteration: 2, Scale: 0.81})
	assert.Equal(t, 2.0, promtest.ToFloat64(m.iterations))
	assert.InDelta(t, 0.81, promtest.ToFloat64(m.scale), 1e-12)

	m.ObserveSessionStart(sequencer.Snapshot{})
	assert.Equal(t, 1.0, promtest.ToFloat64(m.scale))
}

func TestObserveStateIsOneHot(t *testing.T) {
	m := New()
	m.ObserveState(sequencer.StateWaiting)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.state.WithLabelValues("waiting")))
	for _, s := range []string{"idle", "running", "stopped"} {
		assert.Equal(t, 0.0, promtest.ToFloat64(m.state.WithLabelValues(s)), s)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveFailure(sequencer.PhasePlayback)
	m.ObserveTrigger()
	m.ObserveJournalError()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, out, `trackside_session_failures_total{phase="playback"} 1`)
	assert.Contains(t, out, "trackside_triggers_total 1")
	assert.Contains(t, out, "trackside_journal_errors_total 1")
	assert.True(t, strings.Contains(out, "go_goroutines"))
}

func TestFailureCounterByPhase(t *testing.T) {
	m := New()
	m.ObserveFailure(sequencer.PhaseInit)
	expected := `
# HELP trackside_session_failures_total Sessions stopped by a failure, by phase.
# TYPE trackside_session_failures_total counter
trackside_session_failures_total{phase="rest initialization"} 1
`
	assert.NoError(t, promtest.CollectAndCompare(m.failures, strings.NewReader(expected)))
}
