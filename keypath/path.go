// Package keypath models addresses inside a snapshot tree. A Path is an
// ordered list of keys; sequence indices are stored as decimal strings so a
// single representation covers mappings and sequences alike.
package keypath

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Separator joins path segments in the dotted surface syntax.
const Separator = "."

// Path addresses a location within a snapshot. The empty Path is the root.
type Path []string

// Parse splits a dotted string ("user.address.city") into a Path. The empty
// string yields the root path.
func Parse(dotted string) Path {
	if dotted == "" {
		return Path{}
	}
	return Path(strings.Split(dotted, Separator))
}

// FromKey builds a single segment path from a bare string or integer key.
// Floats are accepted when they hold an integral value.
func FromKey(key any) (Path, bool) {
	switch typed := key.(type) {
	case string:
		return Path{typed}, true
	case int:
		return Path{strconv.Itoa(typed)}, true
	case int8, int16, int32, int64:
		return Path{strconv.FormatInt(reflect.ValueOf(typed).Int(), 10)}, true
	case uint, uint8, uint16, uint32, uint64:
		return Path{strconv.FormatUint(reflect.ValueOf(typed).Uint(), 10)}, true
	case float32, float64:
		// decoded JSON numbers arrive as floats; only integral values are keys
		f := reflect.ValueOf(typed).Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, false
		}
		return Path{strconv.FormatInt(int64(f), 10)}, true
	default:
		return nil, false
	}
}

// String renders p in dotted form.
func (p Path) String() string {
	return strings.Join(p, Separator)
}

// Key returns an unambiguous map key for p. Unlike String it never collides
// for segments that contain the separator.
func (p Path) Key() string {
	return strings.Join(p, "\x00")
}

// Child returns a new path with key appended. p is never aliased.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Index returns a new path with a sequence index appended.
func (p Path) Index(i int) Path {
	return p.Child(strconv.Itoa(i))
}

// Clone returns a detached copy of p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Equal reports whether p and other address the same location.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor-or-equal of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// IsAncestorOf reports whether p is a strict ancestor of other.
func (p Path) IsAncestorOf(other Path) bool {
	return len(p) < len(other) && other.HasPrefix(p)
}

// Related reports whether either path is an ancestor-or-equal of the other.
// This is the match rule used when routing changes to listeners.
func (p Path) Related(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

// Resolve walks snapshot along p. Missing intermediate keys, out of range
// indices and scalars in the middle of the path all yield (nil, false).
func Resolve(snapshot any, p Path) (any, bool) {
	current := snapshot
	for _, segment := range p {
		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Get is Resolve without the found flag.
func Get(snapshot any, p Path) any {
	value, _ := Resolve(snapshot, p)
	return value
}

func step(current any, segment string) (any, bool) {
	switch typed := current.(type) {
	case nil:
		return nil, false
	case map[string]any:
		value, ok := typed[segment]
		return value, ok
	case []any:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= len(typed) {
			return nil, false
		}
		return typed[i], true
	}

	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		value := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !value.IsValid() {
			return nil, false
		}
		return value.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	default:
		return nil, false
	}
}
