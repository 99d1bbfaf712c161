package substate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Normalize converts an arbitrary Go value (structs, typed maps and slices)
// into the snapshot tree the differ understands: map[string]any, []any and
// scalars. Field names follow `json` tags. Integral numbers become int64 and
// the rest float64.
func Normalize(value any) (Snapshot, error) {
	switch value.(type) {
	case nil, string, bool, int, int64, float64:
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("substate: normalize %T: %w", value, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("substate: normalize %T: %w", value, err)
	}
	return normalizeNumbers(out), nil
}

func normalizeNumbers(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			typed[key] = normalizeNumbers(child)
		}
		return typed
	case []any:
		for i, child := range typed {
			typed[i] = normalizeNumbers(child)
		}
		return typed
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	default:
		return value
	}
}
