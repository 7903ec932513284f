package directive

import (
	"strings"

	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/state"
)

// on registers a listener that runs the statement and then re-renders.
// Supported modifiers: .prevent, .stop and .self.
func (p *Processor) on(el *dom.Element, spec, src string, scope *state.Scope, rerender Rerender) {
	event, _, _ := strings.Cut(spec, ".")
	if event == "" {
		p.fail(el, "@"+spec, src, "missing event name")
		return
	}
	mods := modifiers(spec)

	el.AddEventListener(event, func(ev *dom.Event) error {
		if mods["self"] && ev.Target != nil && ev.Target.Node != el.Node {
			return nil
		}
		if mods["prevent"] {
			ev.PreventDefault()
		}
		if mods["stop"] {
			ev.StopPropagation()
		}

		var renderErr error
		p.eval.EvaluateStatement(src, scope, expression.Bindings{
			Element: el,
			Event:   ev,
			Render: func() error {
				if err := rerender(); err != nil {
					renderErr = err
					return err
				}
				return nil
			},
		})
		if renderErr == nil {
			renderErr = rerender()
		}
		if renderErr != nil {
			return errors.NewEventHandlerError(event, el.String(), p.component, renderErr)
		}
		return nil
	})
}
