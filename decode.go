package substate

import (
	"github.com/goliatone/go-substate/internal/hydrate"
)

// DecodeOption configures Decode and Bind.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	weak   bool
	strict bool
}

// DecodeWeakly lets strings, numbers and bools convert into each other.
func DecodeWeakly() DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.weak = true
	}
}

// DecodeStrict fails when the value has keys the target does not declare.
func DecodeStrict() DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.strict = true
	}
}

// Decode converts a selected value into T using `json` field tags. Durations
// and RFC 3339 timestamps given as strings are parsed. A nil value yields the
// zero T.
func Decode[T any](value any, opts ...DecodeOption) (T, error) {
	return decode[T](hydrate.Context{}, value, opts)
}

// Bind decodes the engine's cached value into T.
func Bind[T any](engine *Engine, opts ...DecodeOption) (T, error) {
	if engine == nil {
		var zero T
		return zero, ErrNotMounted
	}
	ctx := hydrate.Context{Selector: engine.Selector().String()}
	return decode[T](ctx, engine.Value(), opts)
}

func decode[T any](ctx hydrate.Context, value any, opts []DecodeOption) (T, error) {
	cfg := decodeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	var decoderOpts []hydrate.DecoderOption[T]
	if cfg.weak {
		decoderOpts = append(decoderOpts, hydrate.WithWeaklyTypedInput[T]())
	}
	if cfg.strict {
		decoderOpts = append(decoderOpts, hydrate.WithErrorUnused[T]())
	}
	return hydrate.NewDecoder[T](decoderOpts...).Decode(ctx, value)
}
