package pii

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Marker returns the replacement token for a rule name, e.g.
// Marker("email") == "[EMAIL_REDACTED]". Marker tokens contain no digits
// or separators matched by any catalogue pattern, which is what makes
// redaction idempotent.
func Marker(name string) string {
	return fmt.Sprintf("[%s_REDACTED]", strings.ToUpper(name))
}

// DefaultCatalogue returns the ordered builtin rule set. Order matters:
// when two rules could match the same span, the earlier rule wins because
// its replacement removes the span before later rules run.
func DefaultCatalogue() []Rule {
	return []Rule{
		{
			Name:    "email",
			Pattern: `(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`,
		},
		{
			// Before phone: 3-2-4 digit groups must classify as SSN.
			Name:    "ssn",
			Pattern: `\b\d{3}-\d{2}-\d{4}\b`,
		},
		{
			// Before phone: card digit runs would otherwise partially
			// match the phone pattern.
			Name:    "credit_card",
			Pattern: `\b(?:\d{4}[-\s]?){3}\d{4}\b`,
		},
		{
			Name:    "phone",
			Pattern: `(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`,
		},
		{
			Name:    "ip_address",
			Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		},
		{
			// Before ipv6: colon-separated two-hex-digit groups are MACs.
			Name:    "mac_address",
			Pattern: `(?i)\b(?:[0-9a-f]{2}:){5}[0-9a-f]{2}\b`,
		},
		{
			Name:    "ipv6_address",
			Pattern: `(?i)\b(?:[0-9a-f]{1,4}:){3,7}[0-9a-f]{1,4}\b`,
		},
		{
			Name:    "btc_wallet",
			Pattern: `\b(?:bc1[a-z0-9]{25,39}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`,
		},
		{
			Name:    "eth_wallet",
			Pattern: `\b0x[a-fA-F0-9]{40}\b`,
		},
		{
			// Before bearer_token so "Bearer eyJ..." classifies as a JWT.
			Name:    "jwt",
			Pattern: `\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`,
		},
		{
			Name:    "api_key",
			Pattern: `(?i)\b(?:sk_live|sk_test|rk_live|rk_test)_[a-z0-9]{8,}\b|\bsk-[A-Za-z0-9]{16,}\b|\bghp_[A-Za-z0-9]{20,}\b|\bxox[bpras]-[A-Za-z0-9-]{10,}\b`,
		},
		{
			Name:    "aws_access_key",
			Pattern: `\bAKIA[0-9A-Z]{16}\b`,
		},
		{
			Name:    "bearer_token",
			Pattern: `(?i)\bbearer\s+[a-z0-9._\-]{16,}\b`,
		},
		{
			Name:    "iban",
			Pattern: `\b[A-Z]{2}\d{2}[A-Z0-9]{12,30}\b`,
		},
	}
}

// LoadRules reads a YAML rule list, as used by the scrub CLI to override
// the builtin catalogue.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pii: read rules file: %w", err)
	}

	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("pii: parse rules file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, ErrNoRules
	}
	return doc.Rules, nil
}
