package pii

import (
	"encoding/json"
	"reflect"
)

// walkScan traverses v and accumulates rule match counts for every string
// leaf. Containers are maps and ordered sequences; other leaves contribute
// nothing unless they cannot be represented at all, in which case they are
// counted under UnsupportedValueKey.
func (e *engine) walkScan(v any, counts map[string]int) {
	switch value := v.(type) {
	case nil:
	case string:
		e.scanText(value, counts)
	case map[string]any:
		for _, entry := range value {
			e.walkScan(entry, counts)
		}
	case map[string]string:
		for _, entry := range value {
			e.scanText(entry, counts)
		}
	case []any:
		for _, entry := range value {
			e.walkScan(entry, counts)
		}
	case []string:
		for _, entry := range value {
			e.scanText(entry, counts)
		}
	case bool, int, int32, int64, float32, float64, json.Number:
	default:
		if textFree(reflect.TypeOf(value)) {
			return
		}
		if decoded, ok := jsonRoundTrip(value); ok {
			e.walkScan(decoded, counts)
			return
		}
		counts[UnsupportedValueKey]++
	}
}

// walkRedact returns a copy of v with every string leaf rewritten.
// Non-string leaves pass through unchanged, including typed numeric/bool
// containers, which keep their types and precision. Leaves of unknown kinds
// that could hold text are redacted through a JSON round-trip when possible;
// leaves that cannot be serialized are returned as-is rather than dropped,
// and surface in Scan under UnsupportedValueKey.
func (e *engine) walkRedact(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		return e.redactText(value)
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, entry := range value {
			out[key] = e.walkRedact(entry)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(value))
		for key, entry := range value {
			out[key] = e.redactText(entry)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, entry := range value {
			out[i] = e.walkRedact(entry)
		}
		return out
	case []string:
		out := make([]string, len(value))
		for i, entry := range value {
			out[i] = e.redactText(entry)
		}
		return out
	case bool, int, int32, int64, float32, float64, json.Number:
		return value
	default:
		if textFree(reflect.TypeOf(value)) {
			return value
		}
		if decoded, ok := jsonRoundTrip(value); ok {
			return e.walkRedact(decoded)
		}
		return value
	}
}

// textFree reports whether t is a numeric or bool scalar, or a container of
// such scalars, so it cannot hold text anywhere. Such values are returned
// with their types and precision intact instead of going through the JSON
// round-trip.
func textFree(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice, reflect.Array:
		return textFree(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && textFree(t.Elem())
	case reflect.Pointer:
		return textFree(t.Elem())
	default:
		return false
	}
}

// jsonRoundTrip converts an arbitrary serializable value (typically a
// struct) into the generic map/slice/scalar shape the walkers understand.
func jsonRoundTrip(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}
