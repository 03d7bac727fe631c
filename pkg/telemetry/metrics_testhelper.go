package telemetry

import "sync"

// ResetRunMetricsForTest clears cached metric instruments so tests can
// reinitialize them against a fresh MeterProvider. This is intended for
// use in test code only.
func ResetRunMetricsForTest() {
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	runCounter = nil
	runTraceStripCounter = nil
	runBreakGlassCounter = nil
	runLatencyHistogram = nil
	runCostCentsCounter = nil
}
