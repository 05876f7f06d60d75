// Package metrics exposes step and run counters as Prometheus collectors.
// Collector implements engine.Observer.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/pkg/schema"
)

const namespace = "stepflow"

// Collector records step and run outcomes.
type Collector struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg. A nil reg uses a fresh
// private registry.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Finished actions by type and status.",
			},
			[]string{"type", "status", "code"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Action execution time, loop and branch bodies included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by flow and status.",
			},
			[]string{"flow", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Run wall time.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"flow"},
		),
	}
	for _, col := range []prometheus.Collector{c.steps, c.stepDuration, c.runs, c.runDuration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// StepFinished implements engine.Observer.
func (c *Collector) StepFinished(_ context.Context, ev engine.StepEvent) {
	c.steps.WithLabelValues(string(ev.Type), string(ev.Status), ev.Code).Inc()
	c.stepDuration.WithLabelValues(string(ev.Type)).Observe(ev.Duration.Seconds())
}

// RunFinished implements engine.Observer.
func (c *Collector) RunFinished(_ context.Context, result *schema.RunResult) {
	c.runs.WithLabelValues(result.FlowName, string(result.Status)).Inc()
	c.runDuration.WithLabelValues(result.FlowName).Observe(float64(result.DurationMs) / 1000)
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ engine.Observer = (*Collector)(nil)
