//go:build !js_eval

package substate

// NewJSEvaluator is unavailable without the js_eval build tag and returns nil.
// Expression selectors asking for the "js" engine fail with ErrEngineUnavailable.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
