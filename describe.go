package substate

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-substate/keypath"
)

// FieldDescriptor describes a leaf path in a snapshot and its Go type.
type FieldDescriptor struct {
	Path string `json:"path" yaml:"path"`
	Type string `json:"type" yaml:"type"`
}

// Describe lists every leaf of snapshot in path order. Sequences are
// described per element so the paths are valid selector paths; empty
// containers are reported as leaves.
func Describe(snapshot Snapshot) []FieldDescriptor {
	fields := describeValue(snapshot, keypath.Path{})
	if fields == nil {
		return []FieldDescriptor{}
	}
	return fields
}

func describeValue(value any, at keypath.Path) []FieldDescriptor {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			return leaf(at, "map[string]any")
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, describeValue(typed[key], at.Child(key))...)
		}
		return fields
	case []any:
		if len(typed) == 0 {
			return leaf(at, "[]any")
		}
		var fields []FieldDescriptor
		for i, child := range typed {
			fields = append(fields, describeValue(child, at.Index(i))...)
		}
		return fields
	default:
		return leaf(at, typeName(value))
	}
}

func leaf(at keypath.Path, typ string) []FieldDescriptor {
	if len(at) == 0 {
		return nil
	}
	return []FieldDescriptor{{Path: at.String(), Type: typ}}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}
