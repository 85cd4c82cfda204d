// Package metrics provides Prometheus metrics for the orchestration service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	PhasesTotal        *prometheus.CounterVec
	GenerationTotal    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ApprovalsTotal     *prometheus.CounterVec
	ToolingWarnings    *prometheus.CounterVec
	PreviewsTotal      *prometheus.CounterVec
	PreviewsLive       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		PhasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openroger_phases_total",
				Help: "Total phase executions by phase and outcome.",
			},
			[]string{"phase", "outcome"},
		),
		GenerationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openroger_generation_total",
				Help: "Total generation calls by outcome.",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openroger_generation_duration_seconds",
				Help:    "Generation call duration by phase.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openroger_approvals_total",
				Help: "Total approval decisions by action.",
			},
			[]string{"action"},
		),
		ToolingWarnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openroger_tooling_warnings_total",
				Help: "Total non-fatal tooling failures by step.",
			},
			[]string{"step"},
		),
		PreviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openroger_previews_total",
				Help: "Total preview lifecycle events by event.",
			},
			[]string{"event"},
		),
		PreviewsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openroger_previews_live",
				Help: "Number of preview processes currently running.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.PhasesTotal)
	reg.MustRegister(m.GenerationTotal)
	reg.MustRegister(m.GenerationDuration)
	reg.MustRegister(m.ApprovalsTotal)
	reg.MustRegister(m.ToolingWarnings)
	reg.MustRegister(m.PreviewsTotal)
	reg.MustRegister(m.PreviewsLive)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPhase increments the phase counter.
func (m *Metrics) RecordPhase(phase, outcome string) {
	m.PhasesTotal.WithLabelValues(phase, outcome).Inc()
}

// RecordGeneration increments the generation counter.
func (m *Metrics) RecordGeneration(outcome string) {
	m.GenerationTotal.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records the duration of one generation call.
func (m *Metrics) ObserveGeneration(phase string, seconds float64) {
	m.GenerationDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordApproval increments the approval counter.
func (m *Metrics) RecordApproval(action string) {
	m.ApprovalsTotal.WithLabelValues(action).Inc()
}

// RecordToolingWarning increments the tooling warning counter.
func (m *Metrics) RecordToolingWarning(step string) {
	m.ToolingWarnings.WithLabelValues(step).Inc()
}

// RecordPreview increments the preview event counter.
func (m *Metrics) RecordPreview(event string) {
	m.PreviewsTotal.WithLabelValues(event).Inc()
}

// SetPreviewsLive sets the live preview gauge.
func (m *Metrics) SetPreviewsLive(count float64) {
	m.PreviewsLive.Set(count)
}
