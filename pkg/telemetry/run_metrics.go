package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	runCounter           metric.Int64Counter
	runTraceStripCounter metric.Int64Counter
	runBreakGlassCounter metric.Int64Counter
	runLatencyHistogram  metric.Float64Histogram
	runCostCentsCounter  metric.Float64Counter
)

// RunMetrics captures the fields needed to record wrapper run telemetry.
// It deliberately carries no payload or trace content: only coarse,
// non-sensitive dimensions reach the meter.
type RunMetrics struct {
	Status     string
	BreakGlass bool
	TraceStrip bool
	Duration   time.Duration
	CostCents  float64
}

// RecordRunMetrics emits counters and a latency histogram for one wrapper
// run via the global OpenTelemetry meter. Initialisation failures silently
// disable emission: telemetry must never fail a request.
func RecordRunMetrics(ctx context.Context, metrics RunMetrics) {
	if err := ensureRunMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("run.status", metrics.Status),
		attribute.Bool("run.break_glass", metrics.BreakGlass),
	}

	runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.Duration > 0 {
		runLatencyHistogram.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if metrics.CostCents > 0 {
		runCostCentsCounter.Add(ctx, metrics.CostCents, metric.WithAttributes(attrs...))
	}
	if metrics.TraceStrip {
		runTraceStripCounter.Add(ctx, 1)
	}
	if metrics.BreakGlass {
		runBreakGlassCounter.Add(ctx, 1)
	}
}

func ensureRunMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("blackbox.wrapper")

		runCounter, metricsInitErr = meter.Int64Counter(
			"blackbox.runs_total",
			metric.WithDescription("Wrapper runs partitioned by status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runTraceStripCounter, metricsInitErr = meter.Int64Counter(
			"blackbox.trace_strips_total",
			metric.WithDescription("Results with execution traces stripped"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runBreakGlassCounter, metricsInitErr = meter.Int64Counter(
			"blackbox.break_glass_total",
			metric.WithDescription("Break-glass activations"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"blackbox.run_duration_ms",
			metric.WithDescription("Observed wrapper run latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		runCostCentsCounter, metricsInitErr = meter.Float64Counter(
			"blackbox.cost_cents_total",
			metric.WithDescription("Accumulated agent execution cost"),
			metric.WithUnit("{cent}"),
		)
	})

	return metricsInitErr
}
