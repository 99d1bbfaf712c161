package substate

import "time"

// Snapshot is one version of the whole shared state tree: nested
// map[string]any and []any containers with scalar leaves. Snapshots handed out
// by a Store are read-only by convention.
type Snapshot = any

// Signal tells a consumer that its Engine cached a fresh value. How that turns
// into a re-render or a recomputation is up to the consumer.
type Signal interface {
	Changed(value any)
}

// SignalFunc adapts a function to Signal.
type SignalFunc func(value any)

// Changed implements Signal.
func (f SignalFunc) Changed(value any) {
	if f != nil {
		f(value)
	}
}

// EvalContext carries inputs needed when evaluating an expression selector.
type EvalContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx EvalContext) withDefaultNow() EvalContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx EvalContext) withDefaultMaps() EvalContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) withDefaults() EvalContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

// Evaluator executes expressions against an evaluation context.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx EvalContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}
