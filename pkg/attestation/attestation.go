// Package attestation builds verifiable metadata records binding a request
// to its hashes, policy, and code version for later audit.
package attestation

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/agentguard/blackbox/pkg/policy"
)

// BreakGlass annotates an attestation whose request was exempted from
// trace stripping. It is applied by the wrapper, never by the generator.
type BreakGlass struct {
	Enabled   bool   `json:"enabled"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Record is the attestation payload attached to a result and persisted
// with the outcome.
type Record struct {
	RequestID  string      `json:"request_id"`
	InputHash  string      `json:"input_hash,omitempty"`
	OutputHash string      `json:"output_hash,omitempty"`
	CodeSHA    string      `json:"code_sha,omitempty"`
	PolicyHash string      `json:"policy_hash,omitempty"`
	Timestamp  string      `json:"timestamp"`
	BreakGlass *BreakGlass `json:"break_glass,omitempty"`
}

// MarkBreakGlass attaches the break-glass annotation. The caller decides
// whether a request is under break-glass; the record only carries it.
func (r *Record) MarkBreakGlass(reason string, now time.Time) {
	r.BreakGlass = &BreakGlass{
		Enabled:   true,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// Generator produces attestation records according to policy flags. It is
// policy-agnostic beyond those flags: break-glass scoping is the caller's
// concern.
type Generator struct {
	policy     policy.Policy
	policyHash string
	codeSHA    string
	now        func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithCodeSHA overrides the code version identifier. By default the
// generator uses the module's VCS revision from build info.
func WithCodeSHA(sha string) Option {
	return func(g *Generator) { g.codeSHA = sha }
}

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator constructs a Generator for the given policy. The policy
// hash is computed once: the policy is immutable for the generator's
// lifetime.
func NewGenerator(p policy.Policy, opts ...Option) (*Generator, error) {
	g := &Generator{
		policy:  p,
		codeSHA: buildCodeSHA(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if p.IncludePolicyHash {
		hash, err := p.Hash()
		if err != nil {
			return nil, fmt.Errorf("attestation: hash policy: %w", err)
		}
		g.policyHash = hash
	}
	return g, nil
}

// Generate builds the attestation record for one request. Callers must not
// invoke Generate when both policy flags are false; absence of an
// attestation is signaled by never calling the generator.
func (g *Generator) Generate(requestID, inputHash, outputHash string) *Record {
	record := &Record{
		RequestID:  requestID,
		InputHash:  inputHash,
		OutputHash: outputHash,
		Timestamp:  g.now().UTC().Format(time.RFC3339),
	}
	if g.policy.IncludeCodeSHA {
		record.CodeSHA = g.codeSHA
	}
	if g.policy.IncludePolicyHash {
		record.PolicyHash = g.policyHash
	}
	return record
}

// buildCodeSHA extracts the VCS revision recorded in the binary's build
// info, or "unknown" when the build carries none.
func buildCodeSHA() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return "unknown"
}
