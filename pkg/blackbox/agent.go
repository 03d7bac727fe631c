package blackbox

import (
	"context"
	"errors"
)

var (
	// ErrNoAgent is returned by New when no agent is supplied. There is
	// nothing to wrap; this is a configuration error, not a runtime one.
	ErrNoAgent = errors.New("blackbox: no agent configured")

	// ErrUnsupportedParams signals that an agent cannot accept the supplied
	// parameter shape. The wrapper retries exactly once with the task only.
	ErrUnsupportedParams = errors.New("blackbox: unsupported parameters")
)

// Agent is the wrapped-agent collaborator: the sole extension point for what
// is being monitored. Run receives the task and the original, unredacted
// parameters and returns either a plain result value or a map with optional
// "result", "traces" and "cost_cents" keys.
type Agent interface {
	Run(ctx context.Context, task string, params map[string]any) (any, error)
}

// AgentFunc adapts a plain function to the Agent interface.
type AgentFunc func(ctx context.Context, task string, params map[string]any) (any, error)

// Run invokes the function.
func (f AgentFunc) Run(ctx context.Context, task string, params map[string]any) (any, error) {
	return f(ctx, task, params)
}
