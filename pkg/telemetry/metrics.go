package telemetry

import "sync"

// Metrics receives fire-and-forget counters from the wrapper. All methods
// must be safe under concurrent use; lost updates are a correctness bug.
type Metrics interface {
	// RecordRequest counts one completed request with its status
	// ("success" or "error"), latency, and cost.
	RecordRequest(status string, latencyMS int64, costCents float64)

	// RecordTraceStrip counts one trace-stripping event.
	RecordTraceStrip()

	// RecordBreakGlass counts one break-glass activation.
	RecordBreakGlass()
}

// InMemoryMetrics is a mutex-guarded Metrics implementation with
// test-visible accessors.
type InMemoryMetrics struct {
	mu sync.RWMutex

	requests     map[string]int // status -> count
	totalLatency int64
	totalCost    float64
	traceStrips  int
	breakGlass   int
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{requests: make(map[string]int)}
}

// RecordRequest counts one completed request.
func (m *InMemoryMetrics) RecordRequest(status string, latencyMS int64, costCents float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[status]++
	m.totalLatency += latencyMS
	m.totalCost += costCents
}

// RecordTraceStrip counts one trace-stripping event.
func (m *InMemoryMetrics) RecordTraceStrip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traceStrips++
}

// RecordBreakGlass counts one break-glass activation.
func (m *InMemoryMetrics) RecordBreakGlass() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakGlass++
}

// RequestCount returns the number of requests recorded with the status.
func (m *InMemoryMetrics) RequestCount(status string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[status]
}

// TraceStrips returns the number of trace-stripping events recorded.
func (m *InMemoryMetrics) TraceStrips() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.traceStrips
}

// BreakGlassCount returns the number of break-glass activations recorded.
func (m *InMemoryMetrics) BreakGlassCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakGlass
}

// TotalCostCents returns the accumulated cost across all requests.
func (m *InMemoryMetrics) TotalCostCents() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalCost
}

// TotalLatencyMS returns the accumulated latency across all requests.
func (m *InMemoryMetrics) TotalLatencyMS() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalLatency
}
