package blackbox

import (
	"encoding/json"
	"fmt"
)

// agentResponse is the classified form of whatever the agent returned.
type agentResponse struct {
	result    any
	traces    []string
	costCents float64
}

// classifyResponse splits an agent return value into result, traces and
// cost. A map carrying a "result" key is treated as structured; anything
// else is the result itself with no traces and zero cost.
func classifyResponse(raw any) agentResponse {
	m, ok := raw.(map[string]any)
	if !ok {
		return agentResponse{result: raw}
	}
	result, ok := m["result"]
	if !ok {
		return agentResponse{result: raw}
	}

	return agentResponse{
		result:    result,
		traces:    toTraces(m["traces"]),
		costCents: toCents(m["cost_cents"]),
	}
}

func toTraces(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		if len(t) == 0 {
			return nil
		}
		return append([]string(nil), t...)
	case []any:
		if len(t) == 0 {
			return nil
		}
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	default:
		return nil
	}
}

func toCents(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
