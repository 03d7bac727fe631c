// Package policy defines the immutable monitoring policy consumed by the
// black-box wrapper and its collaborators.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentguard/blackbox/pkg/digest"
)

// Policy is a per-deployment configuration record. It is read-only for the
// lifetime of a wrapper instance; nothing in this module mutates it after
// construction.
type Policy struct {
	// BlackBox strips execution traces from returned results.
	BlackBox bool `yaml:"black_box" json:"black_box"`
	// KeepHashes retains SHA-256 digests of redacted input and raw output.
	KeepHashes bool `yaml:"keep_hashes" json:"keep_hashes"`
	// IncludeCodeSHA embeds the code version identifier in attestations.
	IncludeCodeSHA bool `yaml:"include_code_sha" json:"include_code_sha"`
	// IncludePolicyHash embeds this policy's hash in attestations.
	IncludePolicyHash bool `yaml:"include_policy_hash" json:"include_policy_hash"`
	// BreakGlassRequestIDs lists request identifiers exempt from trace
	// stripping. Presence of an ID here is itself audit-worthy.
	BreakGlassRequestIDs []string `yaml:"break_glass_request_ids" json:"break_glass_request_ids"`

	breakGlass map[string]struct{}
}

// New returns a Policy with its break-glass lookup set built. The zero
// Policy is also valid (empty break-glass set), but New makes IsBreakGlass
// an O(1) lookup.
func New(p Policy) Policy {
	p.breakGlass = make(map[string]struct{}, len(p.BreakGlassRequestIDs))
	for _, id := range p.BreakGlassRequestIDs {
		p.breakGlass[id] = struct{}{}
	}
	return p
}

// IsBreakGlass reports whether the request identifier is exempt from trace
// stripping under this policy.
func (p Policy) IsBreakGlass(requestID string) bool {
	if p.breakGlass != nil {
		_, ok := p.breakGlass[requestID]
		return ok
	}
	for _, id := range p.BreakGlassRequestIDs {
		if id == requestID {
			return true
		}
	}
	return false
}

// Hash returns a deterministic SHA-256 hex digest over the policy's fields,
// independent of break-glass ID ordering.
func (p Policy) Hash() (string, error) {
	ids := append([]string(nil), p.BreakGlassRequestIDs...)
	sort.Strings(ids)

	return digest.SHA256Hex(map[string]any{
		"black_box":               p.BlackBox,
		"keep_hashes":             p.KeepHashes,
		"include_code_sha":        p.IncludeCodeSHA,
		"include_policy_hash":     p.IncludePolicyHash,
		"break_glass_request_ids": ids,
	})
}

// LoadFile reads a policy from a YAML file. Unknown fields are rejected.
func LoadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: read file: %w", err)
	}

	var p Policy
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("policy: parse file: %w", err)
	}
	return New(p), nil
}
