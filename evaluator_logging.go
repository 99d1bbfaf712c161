package substate

import (
	"time"

	"github.com/goliatone/go-substate/keypath"
)

// EvaluatorLogEvent describes an evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// UpdateLogEvent describes one Store update attempt.
type UpdateLogEvent struct {
	Version         string
	PreviousVersion string
	Changed         []keypath.Path
	Notified        int
	Deferred        bool
	Skipped         bool
	Duration        time.Duration
	Err             error
	// HookErr is a failure reported by activity hooks. It never fails the
	// update itself.
	HookErr error
}

// UpdateLogger records Store update events.
type UpdateLogger interface {
	LogUpdate(UpdateLogEvent)
}

// UpdateLoggerFunc adapts a function to UpdateLogger.
type UpdateLoggerFunc func(UpdateLogEvent)

// LogUpdate implements UpdateLogger.
func (f UpdateLoggerFunc) LogUpdate(event UpdateLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopUpdateLogger struct{}

func (noopUpdateLogger) LogUpdate(UpdateLogEvent) {}
