package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"pgregory.net/rapid"
)

func TestInMemoryMetrics_Counts(t *testing.T) {
	m := NewInMemoryMetrics()
	m.RecordRequest("success", 10, 1.5)
	m.RecordRequest("success", 20, 0)
	m.RecordRequest("error", 5, 0)
	m.RecordTraceStrip()
	m.RecordBreakGlass()

	assert.Equal(t, 2, m.RequestCount("success"))
	assert.Equal(t, 1, m.RequestCount("error"))
	assert.Equal(t, 1, m.TraceStrips())
	assert.Equal(t, 1, m.BreakGlassCount())
	assert.Equal(t, int64(35), m.TotalLatencyMS())
	assert.InDelta(t, 1.5, m.TotalCostCents(), 1e-9)
}

func TestInMemoryMetrics_ConsistencyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewInMemoryMetrics()

		statuses := rapid.SliceOf(rapid.SampledFrom([]string{"success", "error"})).Draw(t, "statuses")
		for _, s := range statuses {
			m.RecordRequest(s, 1, 0)
		}

		expected := make(map[string]int)
		for _, s := range statuses {
			expected[s]++
		}
		for status, count := range expected {
			if m.RequestCount(status) != count {
				t.Fatalf("count mismatch for %s: expected %d, got %d", status, count, m.RequestCount(status))
			}
		}
	})
}

func TestPromMetrics_RecordsAndExposes(t *testing.T) {
	m := NewPromMetrics()
	m.RecordRequest("success", 42, 1.5)
	m.RecordRequest("error", 7, 0)
	m.RecordTraceStrip()
	m.RecordBreakGlass()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName()
			for _, label := range metric.GetLabel() {
				name += "{" + label.GetName() + "=" + label.GetValue() + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				byName[name] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				byName[name] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, float64(1), byName["blackbox_requests_total{status=success}"])
	assert.Equal(t, float64(1), byName["blackbox_requests_total{status=error}"])
	assert.Equal(t, float64(2), byName["blackbox_request_duration_ms"])
	assert.InDelta(t, 1.5, byName["blackbox_cost_cents_total"], 1e-9)
	assert.Equal(t, float64(1), byName["blackbox_trace_strips_total"])
	assert.Equal(t, float64(1), byName["blackbox_break_glass_total"])
}

func TestPromMetrics_IsolatedRegistry(t *testing.T) {
	a := NewPromMetrics()
	b := NewPromMetrics()
	assert.NotSame(t, a.Registry(), b.Registry())

	// Registering twice in the default registry would panic; separate
	// registries must not.
	assert.NotPanics(t, func() {
		_ = prometheus.NewRegistry()
		a.RecordRequest("success", 1, 0)
		b.RecordRequest("success", 1, 0)
	})
}

func TestRecordRunMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
	})

	ResetRunMetricsForTest()

	RecordRunMetrics(ctx, RunMetrics{
		Status:     "success",
		BreakGlass: true,
		TraceStrip: false,
		Duration:   150 * time.Millisecond,
		CostCents:  2.5,
	})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}

	runs, ok := metrics["blackbox.runs_total"]
	require.True(t, ok, "missing runs metric; have %s", strings.Join(metricNames(metrics), ","))
	runData, ok := runs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runData.DataPoints, 1)
	assert.Equal(t, int64(1), runData.DataPoints[0].Value)

	breakGlass, ok := metrics["blackbox.break_glass_total"]
	require.True(t, ok)
	bgData := breakGlass.Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(1), bgData.DataPoints[0].Value)

	latency, ok := metrics["blackbox.run_duration_ms"]
	require.True(t, ok)
	histData, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histData.DataPoints, 1)
	assert.InDelta(t, 150.0, histData.DataPoints[0].Sum, 1e-9)
}

func metricNames(metrics map[string]metricdata.Metrics) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	return names
}
