package substate

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/goliatone/go-substate/layering"
)

func TestStoreUserAgeScenario(t *testing.T) {
	before := map[string]any{"user": map[string]any{"name": "A", "age": 1}}
	store := NewStore(before)

	var nameCalls, ageCalls int
	var ageValue any
	nameEngine, err := store.Subscribe(MustParse(map[string]string{"n": "user.name"}), SignalFunc(func(any) { nameCalls++ }))
	if err != nil {
		t.Fatalf("subscribe name: %v", err)
	}
	_, err = store.Subscribe(MustParse("user.age"), SignalFunc(func(v any) {
		ageCalls++
		ageValue = v
	}))
	if err != nil {
		t.Fatalf("subscribe age: %v", err)
	}

	if err := store.Update(map[string]any{"user": map[string]any{"name": "A", "age": 2}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	trace := store.LastUpdate()
	if !reflect.DeepEqual(trace.Changed, []string{"user.age"}) {
		t.Fatalf("expected diff [user.age], got %v", trace.Changed)
	}
	if nameCalls != 0 {
		t.Fatalf("map selector on user.name must not be notified, got %d calls", nameCalls)
	}
	if ageCalls != 1 || ageValue != 2 {
		t.Fatalf("expected one age notification with 2, got calls=%d value=%v", ageCalls, ageValue)
	}
	if got := nameEngine.Value().(map[string]any)["n"]; got != "A" {
		t.Fatalf("expected name engine to keep its value, got %v", got)
	}

	after := store.Snapshot().(map[string]any)
	if after["user"].(map[string]any)["name"] != before["user"].(map[string]any)["name"] {
		t.Fatalf("expected user.name preserved")
	}
	if layering.Same(after, before) {
		t.Fatalf("expected a fresh root after a change")
	}
	if trace.Notified != 1 {
		t.Fatalf("expected one listener notified, got %d", trace.Notified)
	}
}

func TestStoreUpdatePreservesUnchangedSubtrees(t *testing.T) {
	settings := map[string]any{"theme": "dark"}
	store := NewStore(map[string]any{"settings": settings, "count": 1})

	if err := store.Update(map[string]any{"settings": map[string]any{"theme": "dark"}, "count": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	current := store.Snapshot().(map[string]any)
	if !layering.Same(current["settings"], settings) {
		t.Fatalf("expected old settings reference to be reused")
	}
}

func TestStoreSameReferenceIsNoop(t *testing.T) {
	snapshot := map[string]any{"a": 1}
	calls := 0
	var logged []UpdateLogEvent
	store := NewStore(snapshot, WithLogger(UpdateLoggerFunc(func(e UpdateLogEvent) { logged = append(logged, e) })))
	if _, err := store.Subscribe(MustParse("a"), SignalFunc(func(any) { calls++ })); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	version := store.Version()

	if err := store.Update(snapshot); err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls != 0 || store.Version() != version {
		t.Fatalf("expected no-op, calls=%d version changed=%v", calls, store.Version() != version)
	}
	if len(logged) != 1 || !logged[0].Skipped {
		t.Fatalf("expected one skipped log event, got %+v", logged)
	}
}

func TestStoreDeepEqualUpdateKeepsVersion(t *testing.T) {
	store := NewStore(map[string]any{"a": map[string]any{"b": 1}})
	version := store.Version()
	calls := 0
	_, _ = store.Subscribe(MustParse("a"), SignalFunc(func(any) { calls++ }))

	if err := store.Update(map[string]any{"a": map[string]any{"b": 1}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no notifications for an equal tree, got %d", calls)
	}
	if store.Version() != version {
		t.Fatalf("expected version to stay when the merged root is the old root")
	}
}

func TestStoreNoDuplicateInvocation(t *testing.T) {
	store := NewStore(map[string]any{"a": 1, "b": 1})
	calls := 0
	_, err := store.Subscribe(MustParse([]string{"a", "b"}), SignalFunc(func(any) { calls++ }))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := store.Update(map[string]any{"a": 2, "b": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one invocation, got %d", calls)
	}
}

func TestStoreNotifiesAncestorsAndDescendants(t *testing.T) {
	store := NewStore(map[string]any{"user": map[string]any{"address": map[string]any{"city": "X"}}})
	var parent, child int
	_, _ = store.Subscribe(MustParse("user"), SignalFunc(func(any) { parent++ }))
	_, _ = store.Subscribe(MustParse("user.address.city"), SignalFunc(func(any) { child++ }))

	_ = store.Update(map[string]any{"user": map[string]any{"address": map[string]any{"city": "Y"}}})
	if parent != 1 || child != 1 {
		t.Fatalf("expected ancestor registration to fire, parent=%d child=%d", parent, child)
	}

	_ = store.Update(map[string]any{"user": "gone"})
	if parent != 2 || child != 2 {
		t.Fatalf("expected descendant registration to fire on wholesale change, parent=%d child=%d", parent, child)
	}
}

func TestStoreListenersSeeMergedSnapshot(t *testing.T) {
	store := NewStore(map[string]any{"a": 1, "b": 1})
	var seen []any
	for _, path := range []string{"a", "b"} {
		sel := MustParse(func(s Snapshot) any { return s }, path)
		_, _ = store.Subscribe(sel, SignalFunc(func(v any) { seen = append(seen, v) }))
	}
	_ = store.Update(map[string]any{"a": 2, "b": 2})
	if len(seen) != 2 {
		t.Fatalf("expected two notifications, got %d", len(seen))
	}
	if !layering.Same(seen[0], seen[1]) || !layering.Same(seen[0], store.Snapshot()) {
		t.Fatalf("expected every listener to see the committed snapshot")
	}
}

func TestStoreRejectsReentrantUpdates(t *testing.T) {
	store := NewStore(map[string]any{"a": 1})
	var reentrant error
	_, _ = store.Subscribe(MustParse("a"), SignalFunc(func(any) {
		reentrant = store.Update(map[string]any{"a": 100})
	}))

	if err := store.Update(map[string]any{"a": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !errors.Is(reentrant, ErrReentrantUpdate) {
		t.Fatalf("expected ErrReentrantUpdate, got %v", reentrant)
	}
	if got := store.Snapshot().(map[string]any)["a"]; got != 2 {
		t.Fatalf("expected rejected update to leave state at 2, got %v", got)
	}
	if err := store.Update(map[string]any{"a": 3}); err != nil {
		t.Fatalf("expected store to accept updates after the pass: %v", err)
	}
}

func TestStoreDefersReentrantUpdates(t *testing.T) {
	store := NewStore(map[string]any{"a": 1}, WithDeferredUpdates())
	var values []any
	_, _ = store.Subscribe(MustParse("a"), SignalFunc(func(v any) {
		values = append(values, v)
		if v == 2 {
			if err := store.Patch(map[string]any{"b": "deferred"}); err != nil {
				t.Errorf("patch: %v", err)
			}
			if err := store.Update(map[string]any{"a": 3}); err != nil {
				t.Errorf("update: %v", err)
			}
		}
	}))

	if err := store.Update(map[string]any{"a": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reflect.DeepEqual(values, []any{2, 3}) {
		t.Fatalf("expected sequential passes, got %v", values)
	}
	trace := store.LastUpdate()
	if !trace.Deferred {
		t.Fatalf("expected last update to be marked deferred")
	}
	// the queued Update replaced the patched snapshot wholesale
	if !reflect.DeepEqual(store.Snapshot(), map[string]any{"a": 3}) {
		t.Fatalf("unexpected final snapshot %v", store.Snapshot())
	}
}

func TestStoreRecoversAfterListenerPanic(t *testing.T) {
	store := NewStore(map[string]any{"a": 1})
	engine, _ := store.Subscribe(MustParse("a"), SignalFunc(func(v any) {
		if v == 2 {
			panic("listener failed")
		}
	}))

	func() {
		defer func() { _ = recover() }()
		_ = store.Update(map[string]any{"a": 2})
	}()

	if err := store.Update(map[string]any{"a": 3}); err != nil {
		t.Fatalf("expected store to reopen after a panic, got %v", err)
	}
	if engine.Value() != 3 {
		t.Fatalf("expected engine refreshed, got %v", engine.Value())
	}
}

func TestStoreUnsubscribeDuringNotification(t *testing.T) {
	store := NewStore(map[string]any{"a": 1})
	var second *Engine
	secondCalls := 0
	_, _ = store.Subscribe(MustParse("a"), SignalFunc(func(any) {
		if second != nil && second.Mounted() {
			if err := store.Unsubscribe(second); err != nil {
				t.Errorf("unsubscribe: %v", err)
			}
		}
	}))
	second, _ = store.Subscribe(MustParse("a"), SignalFunc(func(any) { secondCalls++ }))

	if err := store.Update(map[string]any{"a": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if secondCalls != 0 {
		t.Fatalf("expected unmounted engine to be skipped, got %d calls", secondCalls)
	}
	if store.Index().Registered(second.Listener()) {
		t.Fatalf("expected second engine released")
	}
	if err := store.Unsubscribe(second); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("expected ErrNotMounted on double unsubscribe, got %v", err)
	}
}

func TestStoreResubscribeMovesDependencies(t *testing.T) {
	store := NewStore(map[string]any{"a": 1, "b": 10})
	sum := func(s Snapshot) any {
		m := s.(map[string]any)
		return m["a"].(int) + m["b"].(int)
	}
	var got []any
	engine, err := store.Subscribe(MustParse(sum, "a"), SignalFunc(func(v any) { got = append(got, v) }))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = store.Update(map[string]any{"a": 1, "b": 20})
	if len(got) != 0 {
		t.Fatalf("undeclared dependency must not trigger, got %v", got)
	}

	next, err := store.Resubscribe(engine, MustParse(sum, "a", "b"))
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if engine.Mounted() || !next.Mounted() {
		t.Fatalf("expected old engine unmounted and new one mounted")
	}
	if next.Value() != 21 {
		t.Fatalf("expected fresh initial value, got %v", next.Value())
	}
	if paths := store.Paths(next); len(paths) != 2 {
		t.Fatalf("expected two registered paths, got %v", paths)
	}

	_ = store.Update(map[string]any{"a": 1, "b": 30})
	if !reflect.DeepEqual(got, []any{31}) {
		t.Fatalf("expected signal carried over to the new engine, got %v", got)
	}
	if store.Index().Listeners() != 1 {
		t.Fatalf("expected a single live listener, got %d", store.Index().Listeners())
	}
}

func TestStorePatchOverlaysPartials(t *testing.T) {
	store := NewStore(map[string]any{
		"user":  map[string]any{"name": "A", "age": 1},
		"flags": map[string]any{"beta": true},
	})
	flags := store.Snapshot().(map[string]any)["flags"]

	err := store.Patch(
		map[string]any{"user": map[string]any{"age": 2}},
		map[string]any{"user": map[string]any{"age": 99, "nick": "a"}, "flags": nil},
	)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	want := map[string]any{
		"user":  map[string]any{"name": "A", "age": 2, "nick": "a"},
		"flags": map[string]any{"beta": true},
	}
	if !reflect.DeepEqual(store.Snapshot(), want) {
		t.Fatalf("unexpected snapshot %v", store.Snapshot())
	}
	if !layering.Same(store.Snapshot().(map[string]any)["flags"], flags) {
		t.Fatalf("expected untouched subtree to keep identity")
	}
	if !reflect.DeepEqual(store.LastUpdate().Changed, []string{"user.age", "user.nick"}) {
		t.Fatalf("unexpected changed paths %v", store.LastUpdate().Changed)
	}

	if err := store.Patch(map[string]any{"user": map[string]any{"nick": layering.Delete}}); err != nil {
		t.Fatalf("patch delete: %v", err)
	}
	if _, ok := store.Snapshot().(map[string]any)["user"].(map[string]any)["nick"]; ok {
		t.Fatalf("expected nick removed")
	}
}

func TestStoreVersioner(t *testing.T) {
	n := 0
	store := NewStore(map[string]any{"a": 1}, WithVersioner(func() string {
		n++
		return string(rune('a' + n - 1))
	}))
	if store.Version() != "a" {
		t.Fatalf("expected initial version a, got %q", store.Version())
	}
	_ = store.Update(map[string]any{"a": 2})
	trace := store.LastUpdate()
	if trace.Version != "b" || trace.PreviousVersion != "a" {
		t.Fatalf("unexpected trace versions %+v", trace)
	}
}

func TestStoreDefaultVersionsAreUUIDs(t *testing.T) {
	store := NewStore(nil)
	if len(store.Version()) != 36 {
		t.Fatalf("expected uuid version, got %q", store.Version())
	}
}

func TestStoreConcurrentUpdatesAreSerialised(t *testing.T) {
	store := NewStore(map[string]any{"n": 0}, WithDeferredUpdates())
	var mu sync.Mutex
	seen := map[any]int{}
	_, _ = store.Subscribe(MustParse("n"), SignalFunc(func(v any) {
		mu.Lock()
		seen[v]++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Update(map[string]any{"n": i}); err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for value, count := range seen {
		if count > 1 {
			t.Fatalf("value %v delivered %d times", value, count)
		}
	}
}

func TestStoreSubscribeFunc(t *testing.T) {
	store := NewStore(map[string]any{"a": 1})
	var got any
	engine, err := store.SubscribeFunc("a", func(v any) { got = v })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if engine.Value() != 1 {
		t.Fatalf("expected initial value, got %v", engine.Value())
	}
	_ = store.Update(map[string]any{"a": 5})
	if got != 5 {
		t.Fatalf("expected callback value 5, got %v", got)
	}
	if _, err := store.SubscribeFunc(func(Snapshot) any { return nil }, nil); !errors.Is(err, ErrMissingDependencies) {
		t.Fatalf("expected ErrMissingDependencies, got %v", err)
	}
	value, err := store.Select(MustParse("a"))
	if err != nil || value != 5 {
		t.Fatalf("unexpected select %v err=%v", value, err)
	}
}
