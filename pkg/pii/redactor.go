package pii

import "fmt"

// EnhancedRedactor applies the full builtin catalogue (optionally extended
// with custom rules) to arbitrary structured values. It is the default
// redactor for wrapped agents.
type EnhancedRedactor struct {
	engine *engine
}

// NewEnhancedRedactor builds a redactor over the builtin catalogue plus any
// extra rules, appended after the builtins so catalogue precedence holds.
func NewEnhancedRedactor(extra ...Rule) (*EnhancedRedactor, error) {
	rules := append(DefaultCatalogue(), extra...)
	eng, err := newEngine(rules)
	if err != nil {
		return nil, err
	}
	return &EnhancedRedactor{engine: eng}, nil
}

// Scan returns the number of matches per rule name found anywhere in v.
func (r *EnhancedRedactor) Scan(v any) map[string]int {
	counts := make(map[string]int)
	r.engine.walkScan(v, counts)
	return counts
}

// Redact returns a structurally identical copy of v with all matches
// replaced by their marker tokens.
func (r *EnhancedRedactor) Redact(v any) any {
	return r.engine.walkRedact(v)
}

// PolicyRedactor is the simpler redactor variant: it applies only an
// explicitly selected subset of named rules, resolved from a registry.
// It satisfies the same Scan/Redact contract as EnhancedRedactor.
type PolicyRedactor struct {
	engine *engine
}

// NewPolicyRedactor resolves the named rules from the registry (the global
// registry when reg is nil) and compiles them in the given order.
func NewPolicyRedactor(reg *Registry, names ...string) (*PolicyRedactor, error) {
	if reg == nil {
		reg = GlobalRegistry()
	}
	if len(names) == 0 {
		return nil, ErrNoRules
	}

	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		rule, ok := reg.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("pii: unknown rule %q", name)
		}
		rules = append(rules, rule)
	}

	eng, err := newEngine(rules)
	if err != nil {
		return nil, err
	}
	return &PolicyRedactor{engine: eng}, nil
}

// Scan returns the number of matches per selected rule found anywhere in v.
func (r *PolicyRedactor) Scan(v any) map[string]int {
	counts := make(map[string]int)
	r.engine.walkScan(v, counts)
	return counts
}

// Redact returns a structurally identical copy of v with matches of the
// selected rules replaced by their marker tokens.
func (r *PolicyRedactor) Redact(v any) any {
	return r.engine.walkRedact(v)
}
