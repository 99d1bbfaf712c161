// Package hydrate decodes selected snapshot values into typed structs.
package hydrate

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Context identifies what is being decoded, for hooks and error messages.
type Context struct {
	Selector string
	Version  string
}

// PreHook lets callers reshape the value before decoding. It receives a deep
// copy, so mutating it is safe.
type PreHook func(Context, any) (any, error)

// PostHook lets callers adjust or validate the decoded struct.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces the default mapstructure decoding when provided.
type CustomDecoder[T any] func(Context, any) (T, error)

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts snapshot values into T. Field names come from `json` tags
// so the same structs work with encoding/json.
type Decoder[T any] struct {
	preHooks  []PreHook
	postHooks []PostHook[T]
	hooks     []mapstructure.DecodeHookFunc
	tagName   string
	weak      bool
	strict    bool
	custom    CustomDecoder[T]
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithWeaklyTypedInput lets strings, numbers and bools convert into each
// other ("42" into an int field, for example).
func WithWeaklyTypedInput[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.weak = true
	}
}

// WithErrorUnused fails decoding when the value has keys T does not declare.
func WithErrorUnused[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.strict = true
	}
}

// WithDecodeHook adds a mapstructure decode hook after the built-in duration
// and RFC 3339 time hooks.
func WithDecodeHook[T any](hook mapstructure.DecodeHookFunc) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.hooks = append(d.hooks, hook)
		}
	}
}

// WithTagName overrides the struct tag used for field names.
func WithTagName[T any](tag string) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.tagName = tag
	}
}

// WithCustomDecoder replaces the default decoding path.
func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

// NewDecoder builds a Decoder for T.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{tagName: "json"}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts value into T applying configured hooks. A nil value decodes
// to the zero T; missing paths are not errors.
func (d *Decoder[T]) Decode(ctx Context, value any) (T, error) {
	var zero T
	current := deepCopy(value)

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for %s failed: %w", describe(ctx), err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if d.custom != nil {
		decoded, err := d.custom(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: custom decoder for %s failed: %w", describe(ctx), err)
		}
		result = decoded
	} else if current != nil {
		hooks := append([]mapstructure.DecodeHookFunc{
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		}, d.hooks...)
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &result,
			TagName:          d.tagName,
			WeaklyTypedInput: d.weak,
			ErrorUnused:      d.strict,
			DecodeHook:       mapstructure.ComposeDecodeHookFunc(hooks...),
		})
		if err != nil {
			return zero, fmt.Errorf("hydrate: configure decoder: %w", err)
		}
		if err := decoder.Decode(current); err != nil {
			return zero, fmt.Errorf("hydrate: decode %s: %w", describe(ctx), err)
		}
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %s failed: %w", describe(ctx), err)
		}
	}
	return result, nil
}

func describe(ctx Context) string {
	if ctx.Selector == "" {
		return "value"
	}
	return fmt.Sprintf("selector %q", ctx.Selector)
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			out[key] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return value
	}
}
