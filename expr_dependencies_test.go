package substate

import (
	"errors"
	"reflect"
	"testing"
)

func TestExprDependencies(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want []string
	}{
		{name: "member chain", expr: "user.address.city", want: []string{"user.address.city"}},
		{name: "constant index", expr: "items[0].id + items[1].id", want: []string{"items.0.id", "items.1.id"}},
		{name: "dynamic index stops the chain", expr: "items[cursor].id", want: []string{"cursor", "items"}},
		{name: "builtin argument", expr: "len(cart.items) > 0", want: []string{"cart.items"}},
		{name: "reserved names ignored", expr: "now.Year() > args.min && metadata.on", want: []string{}},
		{name: "state prefix", expr: "state.user.age", want: []string{"user.age"}},
		{name: "bare state is the root", expr: "state != nil", want: []string{""}},
		{name: "function callee is not a path", expr: "greet(user.name)", want: []string{"user.name"}},
		{name: "bare identifier", expr: "count * 2", want: []string{"count"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExprDependencies(tc.expr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if _, err := ExprDependencies("user.age +"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestExpressionWithInferredDependencies(t *testing.T) {
	sel, err := Expression("user.age >= 18 && len(cart.items) > 0", nil, WithInferredDependencies())
	if err != nil {
		t.Fatalf("expression: %v", err)
	}
	deps := sel.Dependencies()
	if len(deps) != 2 || deps[0].String() != "cart.items" || deps[1].String() != "user.age" {
		t.Fatalf("unexpected inferred deps %v", deps)
	}

	store := NewStore(map[string]any{
		"user": map[string]any{"age": 20, "name": "A"},
		"cart": map[string]any{"items": []any{}},
	})
	var got []any
	if _, err := store.Subscribe(sel, SignalFunc(func(v any) { got = append(got, v) })); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = store.Patch(map[string]any{"user": map[string]any{"name": "B"}})
	_ = store.Patch(map[string]any{"cart": map[string]any{"items": []any{"book"}}})
	if !reflect.DeepEqual(got, []any{true}) {
		t.Fatalf("expected a single notification from cart.items, got %v", got)
	}

	if _, err := Expression("1 + 2", nil, WithInferredDependencies()); !errors.Is(err, ErrMissingDependencies) {
		t.Fatalf("expected ErrMissingDependencies for a constant expression, got %v", err)
	}
	if _, err := Expression("user.age", nil, WithEngine(EngineCEL), WithInferredDependencies()); !errors.Is(err, ErrMissingDependencies) {
		t.Fatalf("expected cel to still require deps, got %v", err)
	}
}
