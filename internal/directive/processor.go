// Package directive binds attribute directives on freshly rendered markup.
//
// The processor walks a dom.Root in document order, depth first, and applies
// the directive matching each attribute name: x-show, x-if, x-for, x-html,
// x-text, x-model, x-ref, event bindings (@event, x-on:event) and attribute
// bindings (:attr, x-bind:attr). Elements inside an unexpanded <template> are
// only processed once an x-for materializes them.
package directive

import (
	"context"

	"golang.org/x/net/html"

	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/state"
)

// Outcome tells the walker how to continue after an attribute was processed.
type Outcome int

const (
	// Continue processes the next attribute and then the children.
	Continue Outcome = iota
	// Removed means the element left the tree; nothing else runs on it.
	Removed
	// ContentSet means the children were replaced by injected content,
	// which is not processed.
	ContentSet
)

func (o Outcome) String() string {
	switch o {
	case Removed:
		return "removed"
	case ContentSet:
		return "content-set"
	default:
		return "continue"
	}
}

// Rerender re-renders the owning component instance.
type Rerender func() error

// Processor applies directives. It holds no per-render state and may be
// reused across render passes of the same instance.
type Processor struct {
	eval      *expression.Evaluator
	logger    logging.Logger
	component string
	report    func(error)
}

// Option configures a Processor.
type Option func(*Processor)

// WithComponent names the component in errors.
func WithComponent(name string) Option {
	return func(p *Processor) {
		p.component = name
	}
}

// WithReporter registers a sink for directive errors.
func WithReporter(fn func(error)) Option {
	return func(p *Processor) {
		p.report = fn
	}
}

// New creates a Processor evaluating expressions with eval.
func New(eval *expression.Evaluator, logger logging.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if eval == nil {
		eval = expression.New(logger)
	}
	p := &Processor{eval: eval, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process walks every element of root and applies its directives.
func (p *Processor) Process(root *dom.Root, scope *state.Scope, rerender Rerender) {
	p.walk(root, root.Node(), scope, rerender)
}

func (p *Processor) walk(root *dom.Root, parent *html.Node, scope *state.Scope, rerender Rerender) {
	// Siblings inserted by x-for are already processed, so the child list is
	// fixed before any directive runs.
	var children []*html.Node
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, c)
		}
	}
	for _, c := range children {
		if c.Parent != parent {
			continue
		}
		p.processElement(root.Wrap(c), scope, rerender)
	}
}

func (p *Processor) processElement(el *dom.Element, scope *state.Scope, rerender Rerender) {
	contentSet := false
	for _, attr := range el.Attrs() {
		switch p.ProcessAttribute(el, attr, scope, rerender) {
		case Removed:
			return
		case ContentSet:
			contentSet = true
		}
	}
	if contentSet || el.IsTemplate() {
		return
	}
	p.walk(el.Root(), el.Node, scope, rerender)
}

// ProcessAttribute applies the directive named by attr to el. Attributes
// that are not directives are ignored.
func (p *Processor) ProcessAttribute(el *dom.Element, attr html.Attribute, scope *state.Scope, rerender Rerender) Outcome {
	if rerender == nil {
		rerender = func() error { return nil }
	}
	name, value := attr.Key, attr.Val

	switch {
	case name == "x-show":
		p.show(el, value, scope)
	case name == "x-if":
		if p.removeIf(el, value, scope) {
			return Removed
		}
	case name == "x-for":
		p.expand(el, value, scope, rerender)
	case name == "x-html":
		if p.injectHTML(el, value, scope) {
			return ContentSet
		}
	case name == "x-text":
		p.injectText(el, value, scope)
		return ContentSet
	case name == "x-model" || hasPrefix(name, "x-model."):
		p.model(el, name, value, scope, rerender)
	case name == "x-ref":
		scope.Root().Refs()[value] = el
	case hasPrefix(name, "@"):
		p.on(el, name[1:], value, scope, rerender)
	case hasPrefix(name, "x-on:"):
		p.on(el, name[len("x-on:"):], value, scope, rerender)
	case hasPrefix(name, ":"):
		p.bind(el, name[1:], value, scope)
	case hasPrefix(name, "x-bind:"):
		p.bind(el, name[len("x-bind:"):], value, scope)
	}
	return Continue
}

func hasPrefix(s, prefix string) bool {
	return len(s) > len(prefix) && s[:len(prefix)] == prefix
}

func (p *Processor) show(el *dom.Element, src string, scope *state.Scope) {
	v := p.eval.Evaluate(src, scope, expression.Bindings{Element: el})
	el.SetHidden(!state.Truthy(v))
}

func (p *Processor) removeIf(el *dom.Element, src string, scope *state.Scope) bool {
	v := p.eval.Evaluate(src, scope, expression.Bindings{Element: el})
	if state.Truthy(v) {
		return false
	}
	el.Remove()
	return true
}

func (p *Processor) injectHTML(el *dom.Element, src string, scope *state.Scope) bool {
	v := p.eval.Evaluate(src, scope, expression.Bindings{Element: el})
	if err := el.SetInnerHTML(state.Stringify(v)); err != nil {
		p.fail(el, "x-html", src, err.Error())
		return false
	}
	return true
}

func (p *Processor) injectText(el *dom.Element, src string, scope *state.Scope) {
	v := p.eval.Evaluate(src, scope, expression.Bindings{Element: el})
	el.SetText(state.Stringify(v))
}

func (p *Processor) bind(el *dom.Element, attr, src string, scope *state.Scope) {
	if attr == "" {
		return
	}
	v := p.eval.Evaluate(src, scope, expression.Bindings{Element: el})
	if state.Truthy(v) {
		el.SetAttr(attr, state.Stringify(v))
	}
}

func (p *Processor) fail(el *dom.Element, directive, src, msg string) {
	err := errors.NewDirectiveError(directive, src, msg).
		WithComponent(p.component).
		WithElement(el.String())
	p.logger.Warn(context.Background(), err, "directive skipped",
		"directive", directive,
		"expression", src,
		"element", el.String(),
		"component", p.component)
	if p.report != nil {
		p.report(err)
	}
}
