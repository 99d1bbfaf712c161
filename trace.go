package substate

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-substate/keypath"
)

// UpdateTrace records what one committed update did.
type UpdateTrace struct {
	Version         string    `json:"version"`
	PreviousVersion string    `json:"previous_version,omitempty"`
	Changed         []string  `json:"changed"`
	Notified        int       `json:"notified"`
	Deferred        bool      `json:"deferred,omitempty"`
	At              time.Time `json:"at"`
}

// ChangedPaths returns Changed parsed back into paths.
func (t UpdateTrace) ChangedPaths() []keypath.Path {
	if len(t.Changed) == 0 {
		return nil
	}
	out := make([]keypath.Path, 0, len(t.Changed))
	for _, dotted := range t.Changed {
		out = append(out, keypath.Parse(dotted))
	}
	return out
}

// ToJSON serialises the trace for logging or transport.
func (t UpdateTrace) ToJSON() ([]byte, error) {
	type alias UpdateTrace
	return json.Marshal(alias(t))
}

// UpdateTraceFromJSON decodes a payload produced by ToJSON.
func UpdateTraceFromJSON(payload []byte) (UpdateTrace, error) {
	type alias UpdateTrace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return UpdateTrace{}, err
	}
	return UpdateTrace(trace), nil
}

func dottedPaths(paths []keypath.Path) []string {
	out := make([]string, len(paths))
	for i, path := range paths {
		out[i] = path.String()
	}
	return out
}
