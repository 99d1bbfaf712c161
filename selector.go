package substate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/goliatone/go-substate/keypath"
)

// Kind identifies the Selector variant.
type Kind int

const (
	KindInvalid Kind = iota
	KindPath
	KindFunc
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindFunc:
		return "func"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

type field struct {
	key  string
	path keypath.Path
}

// Selector declares which derived value a consumer wants and which paths that
// value depends on. The variant is fixed at construction; the zero Selector
// is invalid.
type Selector struct {
	kind   Kind
	path   keypath.Path
	fields []field
	paths  []keypath.Path
	fn     func(Snapshot) (any, error)
	deps   []keypath.Path
	source string
}

// Path selects the value at a dotted path such as "user.address.city".
func Path(dotted string) (Selector, error) {
	path, err := parsePath(dotted)
	if err != nil {
		return Selector{}, malformed(dotted, err.Error())
	}
	return Selector{kind: KindPath, path: path, source: dotted}, nil
}

// Key selects a top-level value by a bare string or integer key. Integral
// floats, as produced by decoded JSON, count as integers. Unlike Path the key
// is never split on dots.
func Key(key any) (Selector, error) {
	path, ok := keypath.FromKey(key)
	if !ok {
		return Selector{}, malformed(key, fmt.Sprintf("unsupported key type %T", key))
	}
	if path[0] == "" {
		return Selector{}, malformed(key, "key must not be empty")
	}
	return Selector{kind: KindPath, path: path, source: path[0]}, nil
}

// Map selects several paths into a map keyed by output name. Missing paths
// produce nil entries.
func Map(spec map[string]string) (Selector, error) {
	if len(spec) == 0 {
		return Selector{}, malformed(spec, "map selector must name at least one path")
	}
	fields := make([]field, 0, len(spec))
	for key, dotted := range spec {
		path, err := parsePath(dotted)
		if err != nil {
			return Selector{}, malformed(spec, fmt.Sprintf("field %q: %v", key, err))
		}
		fields = append(fields, field{key: key, path: path})
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].key < fields[j].key
	})
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.key+":"+f.path.String())
	}
	return Selector{
		kind:   KindMap,
		fields: fields,
		source: "{" + strings.Join(parts, ",") + "}",
	}, nil
}

// List selects several paths into a slice, in the given order.
func List(dotted ...string) (Selector, error) {
	if len(dotted) == 0 {
		return Selector{}, malformed(dotted, "list selector must name at least one path")
	}
	paths := make([]keypath.Path, 0, len(dotted))
	for _, item := range dotted {
		path, err := parsePath(item)
		if err != nil {
			return Selector{}, malformed(dotted, err.Error())
		}
		paths = append(paths, path)
	}
	return Selector{
		kind:   KindList,
		paths:  paths,
		source: "[" + strings.Join(dotted, ",") + "]",
	}, nil
}

// Func derives a value from the whole snapshot. The function is opaque, so
// deps must list every path it reads; reading an undeclared path is a caller
// error the engine does not detect. An empty dependency string stands for the
// root and matches every change.
func Func(fn func(Snapshot) any, deps ...string) (Selector, error) {
	if fn == nil {
		return Selector{}, malformed(fn, "function must not be nil")
	}
	return newFuncSelector(fn, func(snapshot Snapshot) (any, error) {
		return fn(snapshot), nil
	}, deps, funcName(fn))
}

// FuncE is Func for derivations that can fail. The error is kept on the
// Engine and the cached value becomes nil.
func FuncE(fn func(Snapshot) (any, error), deps ...string) (Selector, error) {
	if fn == nil {
		return Selector{}, malformed(fn, "function must not be nil")
	}
	return newFuncSelector(fn, fn, deps, funcName(fn))
}

func newFuncSelector(spec any, fn func(Snapshot) (any, error), deps []string, source string) (Selector, error) {
	if len(deps) == 0 {
		return Selector{}, &SelectorError{Spec: spec, Err: ErrMissingDependencies}
	}
	paths := make([]keypath.Path, 0, len(deps))
	for _, dep := range deps {
		if dep == "" {
			paths = append(paths, keypath.Path{})
			continue
		}
		path, err := parsePath(dep)
		if err != nil {
			return Selector{}, malformed(spec, fmt.Sprintf("dependency %q: %v", dep, err))
		}
		paths = append(paths, path)
	}
	return Selector{
		kind:   KindFunc,
		fn:     fn,
		deps:   dedupePaths(paths),
		source: source,
	}, nil
}

// Parse builds a Selector from a dynamically typed spec: a dotted string, an
// integer key, a map of output names to paths, a slice of paths, a function
// of the snapshot (deps required), or an existing Selector. Anything else is
// ErrMalformedSelector. deps are only accepted alongside a function.
func Parse(spec any, deps ...string) (Selector, error) {
	if _, isFunc := spec.(func(Snapshot) any); !isFunc {
		if _, isFuncE := spec.(func(Snapshot) (any, error)); !isFuncE && len(deps) > 0 {
			return Selector{}, malformed(spec, "dependencies are only valid for function selectors")
		}
	}

	switch typed := spec.(type) {
	case Selector:
		if typed.kind == KindInvalid {
			return Selector{}, malformed(spec, "zero selector")
		}
		return typed, nil
	case string:
		return Path(typed)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Key(typed)
	case map[string]string:
		return Map(typed)
	case map[string]any:
		fields := make(map[string]string, len(typed))
		for key, value := range typed {
			dotted, ok := value.(string)
			if !ok {
				return Selector{}, malformed(spec, fmt.Sprintf("field %q must be a path string, got %T", key, value))
			}
			fields[key] = dotted
		}
		return Map(fields)
	case []string:
		return List(typed...)
	case []any:
		items := make([]string, 0, len(typed))
		for i, value := range typed {
			dotted, ok := value.(string)
			if !ok {
				return Selector{}, malformed(spec, fmt.Sprintf("item %d must be a path string, got %T", i, value))
			}
			items = append(items, dotted)
		}
		return List(items...)
	case func(Snapshot) any:
		return Func(typed, deps...)
	case func(Snapshot) (any, error):
		return FuncE(typed, deps...)
	case nil:
		return Selector{}, malformed(spec, "nil selector")
	default:
		return Selector{}, malformed(spec, fmt.Sprintf("unsupported selector type %T", spec))
	}
}

// MustParse is Parse that panics on error, for package-level selectors.
func MustParse(spec any, deps ...string) Selector {
	sel, err := Parse(spec, deps...)
	if err != nil {
		panic(err)
	}
	return sel
}

// Kind reports the variant.
func (s Selector) Kind() Kind {
	return s.kind
}

// IsZero reports whether s was never constructed.
func (s Selector) IsZero() bool {
	return s.kind == KindInvalid
}

// Dependencies returns the deduplicated paths the selector registers under.
// The slice is detached from the selector.
func (s Selector) Dependencies() []keypath.Path {
	var paths []keypath.Path
	switch s.kind {
	case KindPath:
		paths = []keypath.Path{s.path}
	case KindMap:
		paths = make([]keypath.Path, 0, len(s.fields))
		for _, f := range s.fields {
			paths = append(paths, f.path)
		}
		paths = dedupePaths(paths)
	case KindList:
		paths = dedupePaths(s.paths)
	case KindFunc:
		paths = s.deps
	default:
		return nil
	}
	out := make([]keypath.Path, len(paths))
	for i, path := range paths {
		out[i] = path.Clone()
	}
	return out
}

// Evaluate projects snapshot through the selector. Missing paths yield nil
// rather than an error; only function selectors can fail.
func (s Selector) Evaluate(snapshot Snapshot) (any, error) {
	switch s.kind {
	case KindPath:
		return keypath.Get(snapshot, s.path), nil
	case KindMap:
		out := make(map[string]any, len(s.fields))
		for _, f := range s.fields {
			out[f.key] = keypath.Get(snapshot, f.path)
		}
		return out, nil
	case KindList:
		out := make([]any, len(s.paths))
		for i, path := range s.paths {
			out[i] = keypath.Get(snapshot, path)
		}
		return out, nil
	case KindFunc:
		return s.fn(snapshot)
	default:
		return nil, malformed(s, "zero selector")
	}
}

// String renders the selector's source form.
func (s Selector) String() string {
	if s.kind == KindInvalid {
		return "<invalid>"
	}
	return s.kind.String() + "(" + s.source + ")"
}

func parsePath(dotted string) (keypath.Path, error) {
	if dotted == "" {
		return nil, errors.New("path must not be empty")
	}
	path := keypath.Parse(dotted)
	for _, segment := range path {
		if segment == "" {
			return nil, fmt.Errorf("path %q has an empty segment", dotted)
		}
	}
	return path, nil
}

func dedupePaths(paths []keypath.Path) []keypath.Path {
	seen := make(map[string]struct{}, len(paths))
	out := make([]keypath.Path, 0, len(paths))
	for _, path := range paths {
		key := path.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, path)
	}
	return out
}

func funcName(fn any) string {
	return fmt.Sprintf("%T@%x", fn, reflect.ValueOf(fn).Pointer())
}
