package substate

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-substate/keypath"
	"github.com/goliatone/go-substate/layering"
	"github.com/goliatone/go-substate/pathindex"
	"github.com/goliatone/go-substate/pkg/activity"
)

// Store owns the current snapshot and routes each update to the engines whose
// dependencies it touched.
//
// An update runs to completion, listener calls included, before the next one
// starts. Updates submitted while a notification pass is running (from a
// listener or another goroutine) are rejected with ErrReentrantUpdate, or
// queued when the store was built WithDeferredUpdates.
type Store struct {
	cfg     storeConfig
	index   *pathindex.Index
	emitter *activity.Emitter

	mu        sync.Mutex
	current   Snapshot
	version   string
	last      UpdateTrace
	notifying bool
	pending   []pendingUpdate
}

type pendingUpdate struct {
	ctx   context.Context
	apply func(current Snapshot) Snapshot
}

// NewStore returns a Store holding initial.
func NewStore(initial Snapshot, opts ...Option) *Store {
	cfg := applyOptions(opts)
	return &Store{
		cfg:     cfg,
		index:   pathindex.New(),
		emitter: activity.NewEmitter(cfg.activityHooks, cfg.activityCfg),
		current: initial,
		version: cfg.versioner(),
	}
}

// Snapshot returns the current snapshot reference. Callers must not mutate it.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Version returns the id of the current snapshot. It changes only when an
// update replaces the root reference.
func (s *Store) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Index exposes the PathIndex for engines mounted by hand.
func (s *Store) Index() *pathindex.Index {
	return s.index
}

// LastUpdate returns the trace of the most recent committed update.
func (s *Store) LastUpdate() UpdateTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	trace := s.last
	trace.Changed = append([]string(nil), s.last.Changed...)
	return trace
}

// Select evaluates sel against the current snapshot without subscribing.
func (s *Store) Select(sel Selector) (any, error) {
	return sel.Evaluate(s.Snapshot())
}

// Update replaces the state with next. It is a no-op when next is the current
// reference.
func (s *Store) Update(next Snapshot) error {
	return s.UpdateContext(context.Background(), next)
}

// UpdateContext is Update with a context handed to activity hooks.
func (s *Store) UpdateContext(ctx context.Context, next Snapshot) error {
	return s.submit(ctx, func(Snapshot) Snapshot {
		return next
	})
}

// Patch overlays partial mappings, strongest first, on the current snapshot
// and commits the result. A nil value in a partial keeps the existing value;
// layering.Delete removes the key. A deferred patch is computed against the
// snapshot current when it is applied.
func (s *Store) Patch(partials ...map[string]any) error {
	return s.PatchContext(context.Background(), partials...)
}

// PatchContext is Patch with a context handed to activity hooks.
func (s *Store) PatchContext(ctx context.Context, partials ...map[string]any) error {
	if len(partials) == 0 {
		return nil
	}
	layers := make([]any, 0, len(partials)+1)
	for _, partial := range partials {
		layers = append(layers, partial)
	}
	return s.submit(ctx, func(current Snapshot) Snapshot {
		return layering.Overlay(append(layers, current)...)
	})
}

func (s *Store) submit(ctx context.Context, apply func(Snapshot) Snapshot) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.notifying {
		if s.cfg.deferUpdates {
			s.pending = append(s.pending, pendingUpdate{ctx: ctx, apply: apply})
			s.mu.Unlock()
			return nil
		}
		version := s.version
		s.mu.Unlock()
		s.cfg.logger.LogUpdate(UpdateLogEvent{
			PreviousVersion: version,
			Err:             ErrReentrantUpdate,
		})
		return ErrReentrantUpdate
	}
	s.notifying = true
	s.mu.Unlock()

	drained := false
	defer func() {
		if drained {
			return
		}
		// a listener panicked; reopen the store and drop queued work
		s.mu.Lock()
		s.notifying = false
		s.pending = nil
		s.mu.Unlock()
	}()

	s.commit(ctx, apply, false)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.notifying = false
			drained = true
			s.mu.Unlock()
			return nil
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		s.commit(next.ctx, next.apply, true)
	}
}

// commit runs one diff, merge, collect and notify cycle. The caller holds the
// notifying flag.
func (s *Store) commit(ctx context.Context, apply func(Snapshot) Snapshot, deferred bool) {
	start := time.Now()
	s.mu.Lock()
	current, previous := s.current, s.version
	s.mu.Unlock()

	next := apply(current)
	if layering.Same(current, next) {
		s.cfg.logger.LogUpdate(UpdateLogEvent{
			Version:         previous,
			PreviousVersion: previous,
			Deferred:        deferred,
			Skipped:         true,
			Duration:        time.Since(start),
		})
		return
	}

	changed := layering.Diff(current, next)
	merged := layering.Merge(current, next)
	version := previous
	if !layering.Same(current, merged) {
		version = s.cfg.versioner()
	}

	s.mu.Lock()
	s.current = merged
	s.version = version
	s.mu.Unlock()

	var listeners []*pathindex.Listener
	if len(changed) > 0 {
		listeners = s.index.Collect(changed)
	}
	for _, listener := range listeners {
		listener.Invoke(merged)
	}

	trace := UpdateTrace{
		Version:         version,
		PreviousVersion: previous,
		Changed:         dottedPaths(changed),
		Notified:        len(listeners),
		Deferred:        deferred,
		At:              start,
	}
	s.mu.Lock()
	s.last = trace
	s.mu.Unlock()

	var hookErr error
	if len(changed) > 0 {
		hookErr = s.emitter.Emit(ctx, activity.BuildStateUpdatedEvent(activity.StateEventInput{
			SnapshotID:         version,
			PreviousSnapshotID: previous,
			Changed:            trace.Changed,
			Notified:           trace.Notified,
			Deferred:           deferred,
			OccurredAt:         start,
		}))
	}
	s.cfg.logger.LogUpdate(UpdateLogEvent{
		Version:         version,
		PreviousVersion: previous,
		Changed:         changed,
		Notified:        len(listeners),
		Deferred:        deferred,
		Duration:        time.Since(start),
		HookErr:         hookErr,
	})
}

// Subscribe mounts a new Engine for sel on the current snapshot. signal is
// told whenever the engine caches a fresh value.
func (s *Store) Subscribe(sel Selector, signal Signal) (*Engine, error) {
	engine, err := NewEngine(sel, signal)
	if err != nil {
		return nil, err
	}
	snapshot := s.Snapshot()
	if err := engine.Mount(s.index, snapshot); err != nil {
		return nil, err
	}
	s.emitSubscription(activity.BuildStateSubscribedEvent, engine)
	return engine, nil
}

// SubscribeFunc parses spec (see Parse) and subscribes it, calling fn with
// every fresh value.
func (s *Store) SubscribeFunc(spec any, fn func(value any), deps ...string) (*Engine, error) {
	sel, err := Parse(spec, deps...)
	if err != nil {
		return nil, err
	}
	var signal Signal
	if fn != nil {
		signal = SignalFunc(fn)
	}
	return s.Subscribe(sel, signal)
}

// Unsubscribe unmounts engine. It is safe to call from inside a listener; an
// engine removed mid-pass is not invoked afterwards.
func (s *Store) Unsubscribe(engine *Engine) error {
	if engine == nil {
		return ErrNotMounted
	}
	if err := engine.Unmount(s.index); err != nil {
		return err
	}
	s.emitSubscription(activity.BuildStateUnsubscribedEvent, engine)
	return nil
}

// Resubscribe replaces engine with a fresh one for sel, keeping its signal.
// This is how a function selector moves to a new dependency list.
func (s *Store) Resubscribe(engine *Engine, sel Selector) (*Engine, error) {
	if engine == nil {
		return s.Subscribe(sel, nil)
	}
	if sel.IsZero() {
		return nil, malformed(sel, "zero selector")
	}
	if engine.Mounted() {
		if err := s.Unsubscribe(engine); err != nil {
			return nil, err
		}
	}
	return s.Subscribe(sel, engine.signal)
}

func (s *Store) emitSubscription(build func(activity.StateEventInput) activity.Event, engine *Engine) {
	if !s.emitter.Enabled() {
		return
	}
	event := build(activity.StateEventInput{
		SnapshotID:     s.Version(),
		SubscriptionID: strconv.FormatUint(engine.Listener().ID(), 10),
		Selector:       engine.Selector().String(),
		Dependencies:   dottedPaths(engine.Dependencies()),
	})
	if err := s.emitter.Emit(context.Background(), event); err != nil {
		s.cfg.logger.LogUpdate(UpdateLogEvent{
			Version:         s.Version(),
			PreviousVersion: s.Version(),
			Skipped:         true,
			HookErr:         err,
		})
	}
}

// Paths returns the paths engine is currently registered under.
func (s *Store) Paths(engine *Engine) []keypath.Path {
	if engine == nil {
		return nil
	}
	return s.index.Paths(engine.Listener())
}
