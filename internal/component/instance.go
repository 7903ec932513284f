package component

import (
	"context"
	"fmt"

	"github.com/andybalholm/cascadia"

	"github.com/conneroisu/tessera/internal/dataset"
	"github.com/conneroisu/tessera/internal/directive"
	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/mustache"
	"github.com/conneroisu/tessera/internal/state"
	"github.com/conneroisu/tessera/internal/style"
)

// Phase is the lifecycle state of an instance.
type Phase int

const (
	PhaseConstructed Phase = iota
	PhaseContentPrepared
	PhaseRendered
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseConstructed:
		return "constructed"
	case PhaseContentPrepared:
		return "content-prepared"
	case PhaseRendered:
		return "rendered"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

const defaultMaxRenderDepth = 16

// Instance is a live component: one definition, one host, one context and
// the render boundary regenerated from them on every render.
//
// An Instance is not safe for concurrent use.
type Instance struct {
	def  *Definition
	host Host
	ctx  state.Context
	root *dom.Root

	logger    logging.Logger
	eval      *expression.Evaluator
	proc      *directive.Processor
	collector *errors.ErrorCollector
	style     style.Preprocessor
	coerce    Coercer

	goMethods   map[string]Method
	renderHooks []Hook
	mountHooks  []Hook
	handlers    []boundHandler

	phase    Phase
	mounted  bool
	renders  int
	depth    int
	maxDepth int
	cancel   func()
}

type boundHandler struct {
	SelectorHandler
	matcher cascadia.Matcher
}

// New constructs an instance of def attached to host: the context is seeded
// from the coerced host attributes and light content, and the host is
// observed for mutations. A nil host gets a detached HostElement.
func New(def *Definition, host Host, opts ...Option) (*Instance, error) {
	if def == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "nil definition", nil)
	}
	if host == nil {
		host = NewHostElement(def.Name, nil, "")
	}

	i := &Instance{
		def:       def,
		host:      host,
		ctx:       make(state.Context),
		root:      dom.NewRoot(),
		logger:    logging.NewNop(),
		collector: errors.NewErrorCollector(100),
		style:     style.Passthrough,
		coerce:    dataset.Coerce,
		goMethods: make(map[string]Method),
		maxDepth:  defaultMaxRenderDepth,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.WithComponent(def.Name)
	i.eval = expression.New(i.logger,
		expression.WithComponent(def.Name),
		expression.WithReporter(i.collector.AddError))
	i.proc = directive.New(i.eval, i.logger,
		directive.WithComponent(def.Name),
		directive.WithReporter(i.collector.AddError))

	i.ctx.Merge(i.coerce(host.Attributes()))
	i.ctx[state.ContentKey] = host.Content()
	i.ctx.ResetRefs()
	i.cancel = host.Observe(i.onMutation)
	return i, nil
}

// Mount constructs, prepares and renders an instance.
func Mount(def *Definition, host Host, opts ...Option) (*Instance, error) {
	i, err := New(def, host, opts...)
	if err != nil {
		return nil, err
	}
	if err := i.Render(); err != nil {
		return i, err
	}
	return i, nil
}

// Prepare evaluates the behavior block: state fields not already set by the
// host are deep-copied into the context, methods become context functions
// closing over the live context, and selector handlers are compiled.
func (i *Instance) Prepare() error {
	switch i.phase {
	case PhaseDestroyed:
		return errors.NewLifecycleError(i.def.Name, "prepare", fmt.Errorf("instance destroyed"))
	case PhaseConstructed:
	default:
		return nil
	}

	if b := i.def.Behavior; b != nil {
		if err := b.Compile(); err != nil {
			return i.abort(errors.NewLifecycleError(i.def.Name, "prepare", err))
		}
		for k, v := range b.State {
			if _, ok := i.ctx[k]; !ok {
				i.ctx[k] = state.DeepCopy(v)
			}
		}
		specs, err := b.MethodSpecs()
		if err != nil {
			return i.abort(errors.NewLifecycleError(i.def.Name, "prepare", err))
		}
		for _, spec := range specs {
			i.ctx[spec.Name] = i.behaviorMethod(spec)
		}
		for _, h := range b.Handlers() {
			m, err := dom.CompileSelector(h.Selector)
			if err != nil {
				return i.abort(errors.NewLifecycleError(i.def.Name, "prepare", err))
			}
			i.handlers = append(i.handlers, boundHandler{SelectorHandler: h, matcher: m})
		}
	}
	for name, m := range i.goMethods {
		i.ctx[name] = i.goMethod(m)
	}

	i.phase = PhaseContentPrepared
	return nil
}

func (i *Instance) behaviorMethod(spec MethodSpec) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		scope := state.NewScope(i.ctx)
		if len(spec.Params) > 0 {
			frame := make(map[string]any, len(spec.Params))
			for idx, p := range spec.Params {
				if idx < len(args) {
					frame[p] = args[idx]
				} else {
					frame[p] = nil
				}
			}
			scope = scope.Overlay(frame)
		}
		return expression.Exec(spec.Body, scope, expression.Bindings{Render: i.Render})
	}
}

func (i *Instance) goMethod(m Method) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		return m(i, args)
	}
}

// Render regenerates the render boundary from the markup and the current
// context. A failing stage aborts the pass and keeps the previously
// committed root. Every call renders; nothing is coalesced.
func (i *Instance) Render() (err error) {
	switch i.phase {
	case PhaseDestroyed:
		return errors.NewLifecycleError(i.def.Name, "render", fmt.Errorf("instance destroyed"))
	case PhaseConstructed:
		if err := i.Prepare(); err != nil {
			return err
		}
	}
	if i.depth >= i.maxDepth {
		e := errors.NewLifecycleError(i.def.Name, "render",
			fmt.Errorf("re-render nesting exceeded %d", i.maxDepth))
		e.Code = errors.ErrCodeRenderDepthReached
		return i.abort(e)
	}

	i.depth++
	defer func() {
		i.depth--
		if r := recover(); r != nil {
			err = i.abort(errors.WrapLifecycle(errors.FromPanic(r), i.def.Name, "render"))
		}
	}()

	markup, err := mustache.Render(i.def.Markup, state.NewScope(i.ctx))
	if err != nil {
		return i.abort(errors.WrapCompilation(err, i.def.Name))
	}
	markup, err = i.style.Process(markup, i.def.Name)
	if err != nil {
		return i.abort(errors.WrapLifecycle(err, i.def.Name, "style"))
	}
	next, err := dom.ParseRoot(markup)
	if err != nil {
		return i.abort(errors.WrapCompilation(err, i.def.Name))
	}

	i.ctx.ResetRefs()
	i.proc.Process(next, state.NewScope(i.ctx), i.Render)
	i.bindHandlers(next)

	i.root = next
	i.renders++
	if i.phase < PhaseRendered {
		i.phase = PhaseRendered
	}
	i.logger.Debug(context.Background(), "component rendered",
		"renders", i.renders,
		"listeners", next.ListenerCount())

	if err := i.renderedHooks(); err != nil {
		return i.abort(err)
	}
	if !i.mounted && i.host.Connected() {
		return i.mount()
	}
	return nil
}

func (i *Instance) bindHandlers(root *dom.Root) {
	for _, h := range i.handlers {
		for _, el := range root.Match(h.matcher) {
			el.AddEventListener(h.Event, i.selectorListener(el, h.SelectorHandler))
		}
	}
}

func (i *Instance) selectorListener(el *dom.Element, h SelectorHandler) dom.Listener {
	return func(ev *dom.Event) error {
		var renderErr error
		i.eval.EvaluateStatement(h.Body, state.NewScope(i.ctx), expression.Bindings{
			Element: el,
			Event:   ev,
			Render: func() error {
				if err := i.Render(); err != nil {
					renderErr = err
					return err
				}
				return nil
			},
		})
		if renderErr != nil {
			return errors.NewEventHandlerError(h.Event, el.String(), i.def.Name, renderErr)
		}
		return nil
	}
}

func (i *Instance) renderedHooks() error {
	if b := i.def.Behavior; b != nil && b.Rendered != "" {
		if _, err := expression.Exec(b.Rendered, state.NewScope(i.ctx), expression.Bindings{Render: i.Render}); err != nil {
			return errors.NewLifecycleError(i.def.Name, "rendered", err)
		}
	}
	for _, h := range i.renderHooks {
		if err := h(i); err != nil {
			return errors.WrapLifecycle(err, i.def.Name, "rendered")
		}
	}
	return nil
}

func (i *Instance) mount() error {
	i.mounted = true
	if b := i.def.Behavior; b != nil && b.Mounted != "" {
		if _, err := expression.Exec(b.Mounted, state.NewScope(i.ctx), expression.Bindings{Render: i.Render}); err != nil {
			return i.abort(errors.NewLifecycleError(i.def.Name, "mounted", err))
		}
	}
	for _, h := range i.mountHooks {
		if err := h(i); err != nil {
			return i.abort(errors.WrapLifecycle(err, i.def.Name, "mounted"))
		}
	}
	i.logger.Debug(context.Background(), "component mounted")
	return nil
}

// onMutation reacts to host changes.
func (i *Instance) onMutation(m Mutation) error {
	if i.phase == PhaseDestroyed {
		return nil
	}
	switch m.Kind {
	case AttributeChanged:
		if !i.def.Observes(m.Name) {
			return nil
		}
		if m.Removed {
			for k := range i.coerce(map[string]string{m.Name: m.OldValue}) {
				delete(i.ctx, k)
			}
		}
		i.ctx.Merge(i.coerce(i.host.Attributes()))
		return i.rerender()
	case ContentChanged:
		if !i.def.ObservesContent {
			return nil
		}
		i.ctx[state.ContentKey] = i.host.Content()
		return i.rerender()
	case HostConnected:
		if i.phase == PhaseRendered && !i.mounted {
			return i.mount()
		}
	case HostDisconnected:
		i.Destroy()
	}
	return nil
}

// rerender renders when the instance has rendered before; earlier mutations
// only update the context.
func (i *Instance) rerender() error {
	if i.phase != PhaseRendered {
		return nil
	}
	return i.Render()
}

func (i *Instance) abort(err error) error {
	i.collector.AddError(err)
	i.logger.Error(context.Background(), err, "render aborted",
		"phase", i.phase.String(),
		"renders", i.renders)
	return err
}

// Dispatch delivers ev to the element at path inside the render boundary.
// Listener failures come back as event handler errors.
func (i *Instance) Dispatch(path []int, ev *dom.Event) error {
	el := i.root.ElementAt(path)
	if el == nil {
		return dom.ErrNoTarget
	}
	err := el.Dispatch(ev)
	if err == nil {
		return nil
	}
	if !errors.IsType(err, errors.ErrorTypeEvent) {
		err = errors.NewEventHandlerError(ev.Type, el.String(), i.def.Name, err)
	}
	i.collector.AddError(err)
	return err
}

// Destroy stops observing the host. Later renders fail.
func (i *Instance) Destroy() {
	if i.phase == PhaseDestroyed {
		return
	}
	if i.cancel != nil {
		i.cancel()
	}
	i.phase = PhaseDestroyed
	i.logger.Debug(context.Background(), "component destroyed", "renders", i.renders)
}

// Get resolves a dotted path in the context.
func (i *Instance) Get(path string) (any, bool) {
	return state.Lookup(i.ctx, path)
}

// Set writes a dotted path in the context without rendering.
func (i *Instance) Set(path string, value any) {
	state.NewScope(i.ctx).Set(path, value)
}

// Update writes a dotted path and re-renders a rendered instance.
func (i *Instance) Update(path string, value any) error {
	i.Set(path, value)
	return i.rerender()
}

// Call invokes a method by name with positional arguments.
func (i *Instance) Call(name string, args ...any) (any, error) {
	fn, ok := i.ctx[name].(func(args ...any) (any, error))
	if !ok {
		return nil, fmt.Errorf("%s: no method %q", i.def.Name, name)
	}
	return fn(args...)
}

// FormValue returns the value of a form-associated component.
func (i *Instance) FormValue() (string, bool) {
	if i.def.Role != RoleForm {
		return "", false
	}
	return state.Stringify(i.ctx["value"]), true
}

// Definition returns the definition the instance was built from.
func (i *Instance) Definition() *Definition { return i.def }

// Host returns the host element.
func (i *Instance) Host() Host { return i.host }

// Context returns the live context.
func (i *Instance) Context() state.Context { return i.ctx }

// Root returns the last committed render boundary.
func (i *Instance) Root() *dom.Root { return i.root }

// HTML serializes the last committed render boundary.
func (i *Instance) HTML() string { return i.root.HTML() }

// Phase returns the lifecycle state.
func (i *Instance) Phase() Phase { return i.phase }

// Renders returns the number of committed renders.
func (i *Instance) Renders() int { return i.renders }

// Mounted reports whether the mount hooks ran.
func (i *Instance) Mounted() bool { return i.mounted }

// Errors returns the collector holding this instance's errors.
func (i *Instance) Errors() *errors.ErrorCollector { return i.collector }
