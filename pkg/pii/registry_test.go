package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Rule{Name: "Badge", Pattern: `BDG-\d+`}))

	rule, ok := r.Resolve("badge")
	require.True(t, ok)
	assert.Equal(t, "Badge", rule.Name)

	_, ok = r.Resolve("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsInvalidRules(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Rule{Name: "", Pattern: "x"}))
	assert.Error(t, r.Register(Rule{Name: "x", Pattern: ""}))
}

func TestGlobalRegistry_HasBuiltins(t *testing.T) {
	reg := GlobalRegistry()
	for _, rule := range DefaultCatalogue() {
		_, ok := reg.Resolve(rule.Name)
		assert.Truef(t, ok, "builtin %s missing from global registry", rule.Name)
	}
}
