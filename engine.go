package substate

import (
	"fmt"
	"sync"

	"github.com/goliatone/go-substate/keypath"
	"github.com/goliatone/go-substate/pathindex"
)

// Engine evaluates one Selector on behalf of one consumer and keeps the
// latest value cached. It is unregistered until Mount and after Unmount.
//
// A function selector's dependency list is fixed for the life of the Engine.
// To watch a different set of paths, unmount this Engine and mount a new one
// (Store.Resubscribe does both).
type Engine struct {
	selector Selector
	deps     []keypath.Path
	signal   Signal
	listener *pathindex.Listener

	mu      sync.Mutex
	mounted bool
	index   *pathindex.Index
	value   any
	err     error
}

// NewEngine binds sel to signal. signal may be nil when the consumer polls
// Value instead of being told.
func NewEngine(sel Selector, signal Signal) (*Engine, error) {
	if sel.IsZero() {
		return nil, malformed(sel, "zero selector")
	}
	e := &Engine{
		selector: sel,
		deps:     sel.Dependencies(),
		signal:   signal,
	}
	e.listener = pathindex.NewListener(e.onChange)
	return e, nil
}

// Evaluate projects snapshot through the engine's selector without touching
// the cached value.
func (e *Engine) Evaluate(snapshot Snapshot) (any, error) {
	return e.selector.Evaluate(snapshot)
}

// Mount registers the engine under every dependency path and caches the
// selector's value for snapshot.
func (e *Engine) Mount(index *pathindex.Index, snapshot Snapshot) error {
	if index == nil {
		return fmt.Errorf("substate: mount requires an index")
	}
	e.mu.Lock()
	if e.mounted {
		e.mu.Unlock()
		return ErrAlreadyMounted
	}
	e.value, e.err = e.selector.Evaluate(snapshot)
	if e.err != nil {
		e.value = nil
	}
	e.mounted = true
	e.index = index
	e.mu.Unlock()

	for _, path := range e.deps {
		index.Add(path, e.listener)
	}
	return nil
}

// Unmount removes every registration the engine holds. index must be the one
// passed to Mount; any other index is rejected with ErrIndexMismatch and the
// engine stays mounted.
func (e *Engine) Unmount(index *pathindex.Index) error {
	if index == nil {
		return fmt.Errorf("substate: unmount requires an index")
	}
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return ErrNotMounted
	}
	if e.index != index {
		e.mu.Unlock()
		return ErrIndexMismatch
	}
	e.mounted = false
	e.index = nil
	e.mu.Unlock()

	for _, path := range e.deps {
		index.Remove(path, e.listener)
	}
	return nil
}

// onChange is the listener body. Deliveries that arrive after an unmount in
// the same notification pass are dropped.
func (e *Engine) onChange(snapshot any) {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	value, err := e.selector.Evaluate(snapshot)
	if err != nil {
		value = nil
	}
	e.value, e.err = value, err
	signal := e.signal
	e.mu.Unlock()

	if signal != nil {
		signal.Changed(value)
	}
}

// Value returns the cached value.
func (e *Engine) Value() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Err returns the error from the latest evaluation, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Mounted reports whether the engine is registered.
func (e *Engine) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

// Dependencies returns a copy of the paths the engine registers under.
func (e *Engine) Dependencies() []keypath.Path {
	out := make([]keypath.Path, len(e.deps))
	for i, path := range e.deps {
		out[i] = path.Clone()
	}
	return out
}

// Selector returns the selector the engine evaluates.
func (e *Engine) Selector() Selector {
	return e.selector
}

// Listener returns the identity the engine registers with a PathIndex.
func (e *Engine) Listener() *pathindex.Listener {
	return e.listener
}
