package substate

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSelector indicates a selector spec of an unrecognised shape.
	ErrMalformedSelector = errors.New("substate: malformed selector")
	// ErrMissingDependencies indicates a function selector declared no paths.
	ErrMissingDependencies = errors.New("substate: function selector requires dependencies")
	// ErrReentrantUpdate indicates an update arrived during a notification pass.
	ErrReentrantUpdate = errors.New("substate: update during notification pass")
	// ErrAlreadyMounted indicates Mount on a registered engine.
	ErrAlreadyMounted = errors.New("substate: engine already mounted")
	// ErrNotMounted indicates Unmount on an unregistered engine.
	ErrNotMounted = errors.New("substate: engine not mounted")
	// ErrIndexMismatch indicates Unmount against an index the engine was not
	// mounted on.
	ErrIndexMismatch = errors.New("substate: engine mounted on a different index")
	// ErrUnknownEngine indicates an expression engine name nobody provides.
	ErrUnknownEngine = errors.New("substate: unknown expression engine")
	// ErrEngineUnavailable indicates an engine compiled out of this build.
	ErrEngineUnavailable = errors.New("substate: expression engine unavailable")
)

// SelectorError reports a selector rejected at construction time.
type SelectorError struct {
	Spec   any
	Reason string
	Err    error
}

func (e *SelectorError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason == "" {
		return fmt.Sprintf("%v (spec=%T)", e.Err, e.Spec)
	}
	return fmt.Sprintf("%v: %s (spec=%T)", e.Err, e.Reason, e.Spec)
}

func (e *SelectorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func malformed(spec any, reason string) error {
	return &SelectorError{Spec: spec, Reason: reason, Err: ErrMalformedSelector}
}
