package pii

import (
	"fmt"
	"regexp"
	"strings"
)

// engine applies an ordered, compiled rule set to text. It backs both
// redactor variants; the variants differ only in how their rule sets are
// chosen.
type engine struct {
	rules []compiledRule
}

func newEngine(rules []Rule) (*engine, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("pii: rule name is required")
		}
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("pii: pattern is required for rule %s", name)
		}
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pii: invalid pattern for rule %s: %w", name, err)
		}
		replacement := rule.Replacement
		if replacement == "" {
			replacement = Marker(name)
		}
		if expr.MatchString(replacement) {
			return nil, fmt.Errorf("pii: rule %s matches its own replacement token", name)
		}

		compiled = append(compiled, compiledRule{
			name:        name,
			expr:        expr,
			replacement: replacement,
		})
	}

	return &engine{rules: compiled}, nil
}

// scanText counts matches per rule against the original text. Counts are
// additive across rules: a span may contribute to several rule counts.
func (e *engine) scanText(text string, counts map[string]int) {
	if text == "" {
		return
	}
	for _, rule := range e.rules {
		if n := len(rule.expr.FindAllStringIndex(text, -1)); n > 0 {
			counts[rule.name] += n
		}
	}
}

// redactText rewrites text rule by rule in catalogue order. Earlier rules
// consume their spans before later rules run, so the first matching rule
// wins, and no rule can match inside a replacement token.
func (e *engine) redactText(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range e.rules {
		replacement := rule.replacement
		text = rule.expr.ReplaceAllStringFunc(text, func(string) string {
			return replacement
		})
	}
	return text
}
