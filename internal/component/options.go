package component

import (
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/style"
)

// Method is a Go method attached to an instance. It is callable from
// expressions like a behavior block method.
type Method func(inst *Instance, args []any) (any, error)

// Hook runs after a lifecycle event.
type Hook func(inst *Instance) error

// Coercer converts raw host attributes into context values.
type Coercer func(attrs map[string]string) map[string]any

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(i *Instance) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithStyle sets the style preprocessor run on every render.
func WithStyle(p style.Preprocessor) Option {
	return func(i *Instance) {
		if p != nil {
			i.style = p
		}
	}
}

// WithCoercer replaces the host attribute coercion.
func WithCoercer(c Coercer) Option {
	return func(i *Instance) {
		if c != nil {
			i.coerce = c
		}
	}
}

// WithErrorCollector collects contained errors into c.
func WithErrorCollector(c *errors.ErrorCollector) Option {
	return func(i *Instance) {
		if c != nil {
			i.collector = c
		}
	}
}

// WithMethod attaches a Go method under name.
func WithMethod(name string, m Method) Option {
	return func(i *Instance) {
		i.goMethods[name] = m
	}
}

// WithRenderHook runs h after every committed render.
func WithRenderHook(h Hook) Option {
	return func(i *Instance) {
		i.renderHooks = append(i.renderHooks, h)
	}
}

// WithMountHook runs h once, the first time a render completes while the
// host is connected.
func WithMountHook(h Hook) Option {
	return func(i *Instance) {
		i.mountHooks = append(i.mountHooks, h)
	}
}

// WithMaxRenderDepth bounds nested re-renders, such as a rendered hook that
// re-renders its own instance.
func WithMaxRenderDepth(n int) Option {
	return func(i *Instance) {
		if n > 0 {
			i.maxDepth = n
		}
	}
}
