package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics is a Prometheus-backed Metrics implementation. It owns its
// registry so embedding applications never collide with the default one.
type PromMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	costCentsTotal  prometheus.Counter
	traceStripTotal prometheus.Counter
	breakGlassTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewPromMetrics creates a collector with all wrapper metrics registered.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()

	m := &PromMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blackbox_requests_total",
				Help: "Total number of wrapped agent requests by status",
			},
			[]string{"status"},
		),

		requestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blackbox_request_duration_ms",
				Help:    "Wrapped agent request latency in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
			},
		),

		costCentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blackbox_cost_cents_total",
				Help: "Accumulated agent execution cost in cents",
			},
		),

		traceStripTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blackbox_trace_strips_total",
				Help: "Total number of results with execution traces stripped",
			},
		),

		breakGlassTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blackbox_break_glass_total",
				Help: "Total number of break-glass activations",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestLatency,
		m.costCentsTotal,
		m.traceStripTotal,
		m.breakGlassTotal,
	)

	return m
}

// RecordRequest counts one completed request.
func (m *PromMetrics) RecordRequest(status string, latencyMS int64, costCents float64) {
	m.requestsTotal.WithLabelValues(status).Inc()
	m.requestLatency.Observe(float64(latencyMS))
	if costCents > 0 {
		m.costCentsTotal.Add(costCents)
	}
}

// RecordTraceStrip counts one trace-stripping event.
func (m *PromMetrics) RecordTraceStrip() {
	m.traceStripTotal.Inc()
}

// RecordBreakGlass counts one break-glass activation.
func (m *PromMetrics) RecordBreakGlass() {
	m.breakGlassTotal.Inc()
}

// Handler returns the Prometheus scrape handler for this collector's
// registry.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}
