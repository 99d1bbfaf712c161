// Package pathindex maps snapshot paths to the listeners interested in them.
//
// Registrations live in a trie keyed by path segment, mirrored by a
// listener -> paths table so a listener can be released in time proportional
// to its own dependency count. Collect matches in both directions: a listener
// registered at an ancestor of a changed path fires, and so does one
// registered anywhere beneath it.
package pathindex

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-substate/keypath"
)

var listenerSeq atomic.Uint64

// Listener is an identity handle around a change callback. Two listeners built
// from the same function are still distinct registrations.
type Listener struct {
	id uint64
	fn func(snapshot any)
}

// NewListener wraps fn. A nil fn yields a listener that ignores invocations.
func NewListener(fn func(snapshot any)) *Listener {
	return &Listener{
		id: listenerSeq.Add(1),
		fn: fn,
	}
}

// ID returns the process-unique sequence number assigned at creation.
func (l *Listener) ID() uint64 {
	if l == nil {
		return 0
	}
	return l.id
}

// Invoke calls the wrapped callback with snapshot.
func (l *Listener) Invoke(snapshot any) {
	if l == nil || l.fn == nil {
		return
	}
	l.fn(snapshot)
}

type node struct {
	children  map[string]*node
	listeners map[*Listener]struct{}
	// total registrations in this subtree, used to prune and to skip empty
	// branches during collection
	weight int
}

func newNode() *node {
	return &node{}
}

// Index is a bidirectional registry of path -> listeners. It is safe for
// concurrent use.
type Index struct {
	mu     sync.RWMutex
	root   *node
	byPath map[*Listener]map[string]keypath.Path
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		root:   newNode(),
		byPath: map[*Listener]map[string]keypath.Path{},
	}
}

// Add registers l under path. Registering the same pair twice is a no-op.
func (idx *Index) Add(path keypath.Path, l *Listener) {
	if l == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := path.Key()
	paths := idx.byPath[l]
	if _, exists := paths[key]; exists {
		return
	}
	if paths == nil {
		paths = map[string]keypath.Path{}
		idx.byPath[l] = paths
	}
	paths[key] = path.Clone()

	current := idx.root
	current.weight++
	for _, segment := range path {
		if current.children == nil {
			current.children = map[string]*node{}
		}
		next, ok := current.children[segment]
		if !ok {
			next = newNode()
			current.children[segment] = next
		}
		next.weight++
		current = next
	}
	if current.listeners == nil {
		current.listeners = map[*Listener]struct{}{}
	}
	current.listeners[l] = struct{}{}
}

// Remove deregisters l from path. It is a no-op when the pair is absent. A
// listener left without paths is released entirely.
func (idx *Index) Remove(path keypath.Path, l *Listener) {
	if l == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(path, l)
}

// RemoveAll deregisters every path held by l.
func (idx *Index) RemoveAll(l *Listener) {
	if l == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, path := range idx.byPath[l] {
		idx.removeLocked(path, l)
	}
}

func (idx *Index) removeLocked(path keypath.Path, l *Listener) {
	key := path.Key()
	paths, ok := idx.byPath[l]
	if !ok {
		return
	}
	if _, ok := paths[key]; !ok {
		return
	}
	delete(paths, key)
	if len(paths) == 0 {
		delete(idx.byPath, l)
	}

	trail := make([]*node, 0, len(path)+1)
	current := idx.root
	trail = append(trail, current)
	for _, segment := range path {
		current = current.children[segment]
		trail = append(trail, current)
	}
	delete(current.listeners, l)

	for i := len(trail) - 1; i >= 0; i-- {
		trail[i].weight--
		if i > 0 && trail[i].weight == 0 {
			delete(trail[i-1].children, path[i-1])
		}
	}
}

// Collect returns every listener registered at an ancestor-or-equal or at a
// descendant of any changed path, each exactly once. The result is a detached
// slice, so callers may invoke listeners that mutate the index. Listeners are
// ordered by creation; callers should not rely on that order.
func (idx *Index) Collect(changed []keypath.Path) []*Listener {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := map[*Listener]struct{}{}
	for _, path := range changed {
		current := idx.root
		addListeners(current, seen)
		matched := true
		for _, segment := range path {
			next, ok := current.children[segment]
			if !ok {
				matched = false
				break
			}
			current = next
			addListeners(current, seen)
		}
		if matched {
			collectSubtree(current, seen)
		}
	}

	out := make([]*Listener, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].id < out[j].id
	})
	return out
}

func addListeners(n *node, seen map[*Listener]struct{}) {
	for l := range n.listeners {
		seen[l] = struct{}{}
	}
}

func collectSubtree(n *node, seen map[*Listener]struct{}) {
	for _, child := range n.children {
		if child.weight == 0 {
			continue
		}
		addListeners(child, seen)
		collectSubtree(child, seen)
	}
}

// Paths returns the paths l is registered under, sorted by dotted form.
func (idx *Index) Paths(l *Listener) []keypath.Path {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	paths := idx.byPath[l]
	if len(paths) == 0 {
		return nil
	}
	out := make([]keypath.Path, 0, len(paths))
	for _, path := range paths {
		out = append(out, path.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Registered reports whether l holds at least one path.
func (idx *Index) Registered(l *Listener) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byPath[l]
	return ok
}

// Len returns the total number of (path, listener) registrations.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.root.weight
}

// Listeners returns the number of distinct registered listeners.
func (idx *Index) Listeners() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byPath)
}
