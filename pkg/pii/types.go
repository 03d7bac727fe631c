// Package pii provides pattern-based detection and redaction of personally
// identifiable information inside arbitrary structured values.
package pii

import (
	"errors"
	"regexp"
)

// Rule declares a single PII detection rule. Replacement defaults to the
// canonical marker token for the rule name, e.g. "[EMAIL_REDACTED]" for
// a rule named "email".
type Rule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement,omitempty"`
}

// Redactor detects and masks PII inside arbitrary structured values.
// Scan counts matches per rule name; Redact returns a structurally
// identical copy with every match replaced by the rule's marker token.
//
// Both operations must be idempotent with respect to Redact: no rule may
// match a marker token, so redacting already-redacted output is a no-op.
type Redactor interface {
	Scan(v any) map[string]int
	Redact(v any) any
}

// ErrNoRules is returned when an engine is constructed without any rules.
var ErrNoRules = errors.New("pii: at least one rule is required")

// UnsupportedValueKey is the Scan key under which leaves that cannot be
// traversed or serialized are counted. Such leaves pass through Redact
// unchanged rather than being dropped.
const UnsupportedValueKey = "unsupported_value"

type compiledRule struct {
	name        string
	expr        *regexp.Regexp
	replacement string
}
