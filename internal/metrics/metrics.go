// Package metrics exposes playback progress as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
)

const namespace = "trackside"

// Metrics owns a private registry so tests and embedders never collide on
// the global one.
type Metrics struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	iterations    prometheus.Counter
	scale         prometheus.Gauge
	state         *prometheus.GaugeVec
	failures      *prometheus.CounterVec
	triggers      prometheus.Counter
	journalErrors prometheus.Counter
}

// New registers the simulator collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Timeline transitions written to the pin bank.",
		}, []string{"pin", "state"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Completed timeline cycles.",
		}),
		scale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wait_scale",
			Help:      "Scale factor applied to waits in the current cycle.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequencer_state",
			Help:      "1 for the current sequencer state, 0 for the others.",
		}, []string{"state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_failures_total",
			Help:      "Sessions stopped by a failure, by phase.",
		}, []string{"phase"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Step triggers accepted.",
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Stimulus journal points that could not be stored.",
		}),
	}
	m.registry.MustRegister(
		m.transitions, m.iterations, m.scale, m.state, m.failures, m.triggers, m.journalErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.scale.Set(1)
	m.ObserveState(sequencer.StateIdle)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveTransition(r sequencer.Record) {
	m.transitions.WithLabelValues(strconv.Itoa(r.Pin), string(r.State)).Inc()
}

func (m *Metrics) ObserveIteration(info sequencer.IterationInfo) {
	m.iterations.Inc()
	m.scale.Set(info.Scale)
}

func (m *Metrics) ObserveState(s sequencer.State) {
	for _, st := range []sequencer.State{sequencer.StateIdle, sequencer.StateRunning, sequencer.StateWaiting, sequencer.StateStopped} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

// ObserveSessionStart resets the per-session gauges.
func (m *Metrics) ObserveSessionStart(sequencer.Snapshot) {
	m.scale.Set(1)
}

func (m *Metrics) ObserveFailure(phase sequencer.Phase) {
	m.failures.WithLabelValues(string(phase)).Inc()
}

func (m *Metrics) ObserveTrigger() { m.triggers.Inc() }

func (m *Metrics) ObserveJournalError() { m.journalErrors.Inc() }
