// Package layering compares and combines snapshot trees. Snapshots are built
// from map[string]any (mappings), []any (sequences) and scalars; any other Go
// value is treated as an opaque scalar and compared with deep equality.
package layering

import (
	"math"
	"reflect"
	"sort"

	"github.com/goliatone/go-substate/keypath"
)

type kind int

const (
	kindScalar kind = iota
	kindMapping
	kindSequence
)

func kindOf(v any) kind {
	switch v.(type) {
	case map[string]any:
		return kindMapping
	case []any:
		return kindSequence
	default:
		return kindScalar
	}
}

// Diff returns the shallowest paths at which oldValue and newValue differ.
// No returned path is a descendant of another returned path, and an empty
// result means the two trees are deeply equal. Sequences are compared element
// by element; a length change is reported at the indices that only exist on
// one side. Two NaN scalars of the same type compare equal.
func Diff(oldValue, newValue any) []keypath.Path {
	var changed []keypath.Path
	diffValue(oldValue, newValue, keypath.Path{}, &changed)
	return changed
}

func diffValue(oldValue, newValue any, at keypath.Path, out *[]keypath.Path) {
	if Same(oldValue, newValue) {
		return
	}
	oldKind, newKind := kindOf(oldValue), kindOf(newValue)
	if oldKind != newKind {
		*out = append(*out, at)
		return
	}

	switch oldKind {
	case kindMapping:
		oldMap := oldValue.(map[string]any)
		newMap := newValue.(map[string]any)
		for _, key := range unionKeys(oldMap, newMap) {
			oldChild, inOld := oldMap[key]
			newChild, inNew := newMap[key]
			if inOld != inNew {
				*out = append(*out, at.Child(key))
				continue
			}
			diffValue(oldChild, newChild, at.Child(key), out)
		}
	case kindSequence:
		oldSeq := oldValue.([]any)
		newSeq := newValue.([]any)
		longest := max(len(oldSeq), len(newSeq))
		for i := 0; i < longest; i++ {
			if i >= len(oldSeq) || i >= len(newSeq) {
				*out = append(*out, at.Index(i))
				continue
			}
			diffValue(oldSeq[i], newSeq[i], at.Index(i), out)
		}
	default:
		if !scalarEqual(oldValue, newValue) {
			*out = append(*out, at)
		}
	}
}

// Equal reports whether a and b are deeply equal snapshot trees.
func Equal(a, b any) bool {
	if Same(a, b) {
		return true
	}
	ak, bk := kindOf(a), kindOf(b)
	if ak != bk {
		return false
	}
	switch ak {
	case kindMapping:
		am, bm := a.(map[string]any), b.(map[string]any)
		if len(am) != len(bm) {
			return false
		}
		for key, av := range am {
			bv, ok := bm[key]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case kindSequence:
		as, bs := a.([]any), b.([]any)
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	default:
		return scalarEqual(a, b)
	}
}

// Same reports reference identity: the same map header, the same slice
// backing array and length, or equal comparable scalars.
func Same(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || (av == nil) != (bv == nil) {
			return false
		}
		return reflect.ValueOf(av).UnsafePointer() == reflect.ValueOf(bv).UnsafePointer()
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) || (av == nil) != (bv == nil) {
			return false
		}
		if len(av) == 0 {
			return true
		}
		return &av[0] == &bv[0]
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	switch ta.Kind() {
	case reflect.Interface, reflect.Array, reflect.Struct:
		// May hold uncomparable values at runtime; leave these to scalarEqual.
		return false
	}
	return a == b
}

// scalarEqual treats two NaNs of the same float type as equal so a NaN leaf
// does not report a change on every update.
func scalarEqual(a, b any) bool {
	if Same(a, b) {
		return true
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok && math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
	case float32:
		if bv, ok := b.(float32); ok && av != av && bv != bv {
			return true
		}
	}
	return reflect.DeepEqual(a, b)
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for key := range a {
		keys = append(keys, key)
	}
	for key := range b {
		if _, ok := a[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
