package logging

import (
	"github.com/goliatone/go-substate"
	"github.com/sirupsen/logrus"
)

// Adapter implements substate.UpdateLogger and substate.EvaluatorLogger on a
// logrus entry.
type Adapter struct {
	Entry *logrus.Entry
}

// NewAdapter wraps entry. A nil entry logs through the logrus standard logger.
func NewAdapter(entry *logrus.Entry) Adapter {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return Adapter{Entry: entry}
}

// LogUpdate implements substate.UpdateLogger.
func (a Adapter) LogUpdate(event substate.UpdateLogEvent) {
	fields := logrus.Fields{
		"version":          event.Version,
		"previous_version": event.PreviousVersion,
		"changed":          len(event.Changed),
		"notified":         event.Notified,
		"duration":         event.Duration,
	}
	if event.Deferred {
		fields["deferred"] = true
	}
	if len(event.Changed) > 0 {
		paths := make([]string, len(event.Changed))
		for i, path := range event.Changed {
			paths[i] = path.String()
		}
		fields["paths"] = paths
	}
	entry := a.entry().WithFields(fields)

	switch {
	case event.Err != nil:
		entry.WithError(event.Err).Warn("state update rejected")
	case event.HookErr != nil:
		entry.WithError(event.HookErr).Error("activity hook failed")
	case event.Skipped:
		entry.Trace("state update skipped")
	default:
		entry.Debug("state updated")
	}
}

// LogEvaluation implements substate.EvaluatorLogger.
func (a Adapter) LogEvaluation(event substate.EvaluatorLogEvent) {
	entry := a.entry().WithFields(logrus.Fields{
		"engine":   event.Engine,
		"expr":     event.Expr,
		"duration": event.Duration,
	})
	if event.Err != nil {
		entry.WithError(event.Err).Warn("selector evaluation failed")
		return
	}
	entry.Trace("selector evaluated")
}

func (a Adapter) entry() *logrus.Entry {
	if a.Entry == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return a.Entry
}
