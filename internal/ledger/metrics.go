package ledger

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports observations as prometheus series.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the tool call collectors on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolwarden",
			Name:      "tool_calls_total",
			Help:      "Completed tool calls by tool and outcome (ok, error, blocked).",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolwarden",
			Name:      "tool_duration_seconds",
			Help:      "Tool call latency including the firewall check.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"tool"}),
	}
	registry.MustRegister(m.calls, m.duration)
	return m
}

// Record implements Recorder.
func (m *Metrics) Record(_ context.Context, obs Observation) {
	m.calls.WithLabelValues(obs.Tool, string(obs.Outcome())).Inc()
	m.duration.WithLabelValues(obs.Tool).Observe(obs.Duration.Seconds())
}
