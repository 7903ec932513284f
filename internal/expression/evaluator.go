package expression

import (
	"context"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/state"
	"github.com/expr-lang/expr"
)

// Names of the always-available bindings.
const (
	ElementBinding = "$el"
	EventBinding   = "$event"
	ThisBinding    = "this"
	RenderBinding  = "$render"
)

// Bindings are the values exposed next to the scope chain.
type Bindings struct {
	// Element is the acting element, exposed as $el.
	Element any
	// Event is the triggering event, exposed as $event.
	Event any
	// Render re-renders the owning instance, exposed as $render().
	Render func() error
}

// Env builds the evaluation environment for scope: every frame flattened with
// inner names shadowing outer ones, plus the bindings.
func Env(scope *state.Scope, b Bindings) map[string]any {
	if scope == nil {
		scope = state.NewScope(nil)
	}
	env := scope.Flatten()
	env[ThisBinding] = map[string]any(scope.Root())
	if b.Element != nil {
		env[ElementBinding] = b.Element
	}
	if b.Event != nil {
		env[EventBinding] = b.Event
	}
	if b.Render != nil {
		render := b.Render
		env[RenderBinding] = func() (any, error) {
			return nil, render()
		}
	}
	return env
}

// Eval evaluates a single expression and returns its value.
func Eval(src string, scope *state.Scope, b Bindings) (any, error) {
	env := Env(scope, b)
	program, err := Compile(src, Shadowed(env)...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// Evaluator is the error boundary around Eval and Exec: failures are logged
// and reported, never returned.
type Evaluator struct {
	logger    logging.Logger
	component string
	report    func(error)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReporter registers a sink for expression errors.
func WithReporter(fn func(error)) Option {
	return func(e *Evaluator) {
		e.report = fn
	}
}

// WithComponent names the component in reported errors.
func WithComponent(name string) Option {
	return func(e *Evaluator) {
		e.component = name
	}
}

// New creates an Evaluator. A nil logger discards output.
func New(logger logging.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Evaluator{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the value of src, or nil when evaluation fails.
func (e *Evaluator) Evaluate(src string, scope *state.Scope, b Bindings) any {
	v, err := Eval(src, scope, b)
	if err != nil {
		e.fail(src, err)
		return nil
	}
	return v
}

// EvaluateStatement runs src for its side effects. Failures are swallowed.
func (e *Evaluator) EvaluateStatement(src string, scope *state.Scope, b Bindings) {
	if _, err := Exec(src, scope, b); err != nil {
		e.fail(src, err)
	}
}

func (e *Evaluator) fail(src string, cause error) {
	err := errors.NewExpressionError(src, cause)
	err.Component = e.component
	e.logger.Warn(context.Background(), err, "expression failed",
		"expression", src,
		"component", e.component)
	if e.report != nil {
		e.report(err)
	}
}
