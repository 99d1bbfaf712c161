package substate

import (
	"github.com/goliatone/go-substate/pkg/activity"
	"github.com/google/uuid"
)

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	logger        UpdateLogger
	deferUpdates  bool
	versioner     func() string
	activityHooks activity.Hooks
	activityCfg   activity.Config
}

func applyOptions(opts []Option) storeConfig {
	cfg := storeConfig{
		activityCfg: activity.Config{Channel: activity.DefaultChannel},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = noopUpdateLogger{}
	}
	if cfg.versioner == nil {
		cfg.versioner = uuid.NewString
	}
	return cfg
}

// WithLogger attaches an update logger to the Store.
func WithLogger(logger UpdateLogger) Option {
	return func(cfg *storeConfig) {
		if logger == nil {
			cfg.logger = noopUpdateLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithDeferredUpdates queues updates that arrive while a notification pass is
// running and applies them, in order, once it completes. Without it such
// updates are rejected with ErrReentrantUpdate.
func WithDeferredUpdates() Option {
	return func(cfg *storeConfig) {
		cfg.deferUpdates = true
	}
}

// WithVersioner replaces the snapshot id generator (random UUIDs by default).
func WithVersioner(next func() string) Option {
	return func(cfg *storeConfig) {
		cfg.versioner = next
	}
}
