// Package observability bridges engine lifecycle hooks to Prometheus.
package observability

import (
	"context"

	"github.com/gatewright/passage/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes transition counters and latency histograms. Wire it into
// the engine with passage.WithLifecycleHooks(m.Hooks()).
type Metrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates and registers the metric vectors. Pass
// prometheus.DefaultRegisterer for the process-global registry, or a
// dedicated one in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passage",
			Name:      "transitions_total",
			Help:      "Transition attempts by graph, event and outcome.",
		}, []string{"graph", "event", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "passage",
			Name:      "transition_duration_seconds",
			Help:      "Latency of transition attempts, committed or rejected.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph"}),
	}
	reg.MustRegister(m.transitions, m.duration)
	return m
}

// Hooks returns lifecycle hooks that record every attempt.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCommit:    m.observe,
		OnRejection: m.observe,
	}
}

func (m *Metrics) observe(_ context.Context, ev *domain.TransitionEvent) {
	m.transitions.WithLabelValues(ev.Graph, ev.Event, string(ev.Outcome)).Inc()
	m.duration.WithLabelValues(ev.Graph).Observe(ev.Duration.Seconds())
}
