package blackbox

// Run outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the immutable outcome of one wrapped run. It is constructed
// exactly once per Run invocation and owned by the caller afterwards. The
// Result field is already redacted when the enhanced redactor is active;
// hashes reflect pre-redaction output by design.
type Result struct {
	RequestID  string   `json:"request_id"`
	Status     string   `json:"status"`
	Result     any      `json:"result"`
	Traces     []string `json:"traces,omitempty"`
	LatencyMS  int64    `json:"latency_ms"`
	CostCents  float64  `json:"cost_cents"`
	InputHash  string   `json:"input_hash,omitempty"`
	OutputHash string   `json:"output_hash,omitempty"`

	// Attestation holds an *attestation.Record on success, or an
	// {"error": ...} payload when the run failed.
	Attestation any `json:"attestation,omitempty"`
}
