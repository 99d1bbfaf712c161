package substate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Expression engine names accepted by WithEngine.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// ExpressionOption configures an expression selector.
type ExpressionOption func(*expressionConfig)

type expressionConfig struct {
	evaluator Evaluator
	engine    string
	cache     ProgramCache
	functions *FunctionRegistry
	logger    EvaluatorLogger
	args      map[string]any
	metadata  map[string]any
	infer     bool
	errs      []error
}

// WithEvaluator supplies a ready evaluator, overriding WithEngine.
func WithEvaluator(e Evaluator) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.evaluator = e
	}
}

// WithEngine picks a built-in evaluator by name: "expr" (default), "cel" or
// "js" (requires the js_eval build tag).
func WithEngine(name string) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.engine = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithProgramCache shares compiled programs across expression selectors.
func WithProgramCache(cache ProgramCache) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.cache = cache
	}
}

// WithEvaluatorLogger records every evaluation of the selector.
func WithEvaluatorLogger(logger EvaluatorLogger) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.logger = logger
	}
}

// WithArgs binds static values exposed to the expression as `args`.
func WithArgs(args map[string]any) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.args = copyMap(args)
	}
}

// WithMetadata binds static values exposed to the expression as `metadata`.
func WithMetadata(metadata map[string]any) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.metadata = copyMap(metadata)
	}
}

// WithInferredDependencies adds the paths the expression reads to the
// declared dependencies (see ExprDependencies). Only the expr engine supports
// inference; other engines still need explicit deps.
func WithInferredDependencies() ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.infer = true
	}
}

// JSEvaluatorOption configures the JS evaluator.
type JSEvaluatorOption func(*jsEvaluatorConfig)

type jsEvaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSWithProgramCache applies a ProgramCache to the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Expression builds a function selector whose body is an expression evaluated
// against the snapshot. Top-level snapshot keys are variables; the whole
// snapshot is `state`. As with Func, deps must name every path the
// expression reads unless WithInferredDependencies is set. The expression is
// compiled here so syntax errors surface as ErrMalformedSelector before
// anything is registered.
func Expression(expr string, deps []string, opts ...ExpressionOption) (Selector, error) {
	if strings.TrimSpace(expr) == "" {
		return Selector{}, malformed(expr, "expression must not be empty")
	}
	cfg := expressionConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := errors.Join(cfg.errs...); err != nil {
		return Selector{}, &SelectorError{Spec: expr, Reason: "function", Err: err}
	}
	evaluator, err := cfg.resolveEvaluator()
	if err != nil {
		return Selector{}, &SelectorError{Spec: expr, Reason: cfg.engine, Err: err}
	}
	rule, err := evaluator.Compile(expr)
	if err != nil {
		return Selector{}, &SelectorError{
			Spec:   expr,
			Reason: "compile",
			Err:    fmt.Errorf("%w: %w", ErrMalformedSelector, err),
		}
	}

	engine := evaluatorEngineName(evaluator)
	if cfg.infer && engine == EngineExpr {
		inferred, err := ExprDependencies(expr)
		if err != nil {
			return Selector{}, &SelectorError{Spec: expr, Reason: "infer", Err: fmt.Errorf("%w: %w", ErrMalformedSelector, err)}
		}
		deps = append(append([]string(nil), deps...), inferred...)
	}
	logger := cfg.logger
	if logger == nil {
		logger = noopEvaluatorLogger{}
	}
	args, metadata := cfg.args, cfg.metadata
	fn := func(snapshot Snapshot) (any, error) {
		ctx := EvalContext{Snapshot: snapshot, Args: args, Metadata: metadata}.withDefaults()
		start := time.Now()
		value, evalErr := rule.Evaluate(ctx)
		evalErr = wrapEvaluationError(engine, expr, evalErr)
		logger.LogEvaluation(EvaluatorLogEvent{
			Engine:   engine,
			Expr:     expr,
			Duration: time.Since(start),
			Err:      evalErr,
		})
		if evalErr != nil {
			return nil, evalErr
		}
		return value, nil
	}
	return newFuncSelector(expr, fn, deps, engine+":"+expr)
}

func (cfg expressionConfig) resolveEvaluator() (Evaluator, error) {
	if cfg.evaluator != nil {
		return cfg.evaluator, nil
	}
	switch cfg.engine {
	case "", EngineExpr:
		var exprOpts []ExprEvaluatorOption
		if cfg.cache != nil {
			exprOpts = append(exprOpts, ExprWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		return NewExprEvaluator(exprOpts...), nil
	case EngineCEL:
		var celOpts []CELEvaluatorOption
		if cfg.cache != nil {
			celOpts = append(celOpts, CELWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			celOpts = append(celOpts, CELWithFunctionRegistry(cfg.functions))
		}
		return NewCELEvaluator(celOpts...), nil
	case EngineJS:
		if !jsEvaluatorAvailable() {
			return nil, ErrEngineUnavailable
		}
		var jsOpts []JSEvaluatorOption
		if cfg.cache != nil {
			jsOpts = append(jsOpts, JSWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			jsOpts = append(jsOpts, JSWithFunctionRegistry(cfg.functions))
		}
		return NewJSEvaluator(jsOpts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.engine)
	}
}

// namedEvaluator is implemented by the built-in evaluators.
type namedEvaluator interface {
	engineName() string
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if named, ok := e.(namedEvaluator); ok {
		return named.engineName()
	}
	return "custom"
}

func copyMap(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
