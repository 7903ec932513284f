package directive

import (
	"strconv"
	"strings"

	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/state"
)

// modifiers parses the dotted suffixes of a directive name, e.g.
// "x-model.input.trim" yields {input, trim}.
func modifiers(name string) map[string]bool {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return nil
	}
	mods := make(map[string]bool, len(parts)-1)
	for _, m := range parts[1:] {
		mods[m] = true
	}
	return mods
}

// model binds a form control to a dotted context path in both directions.
func (p *Processor) model(el *dom.Element, name, path string, scope *state.Scope, rerender Rerender) {
	path = strings.TrimSpace(path)
	if path == "" {
		p.fail(el, name, path, "x-model requires a path")
		return
	}
	mods := modifiers(name)

	current, _ := scope.Lookup(path)
	switch el.InputType() {
	case "checkbox":
		if state.IsSequence(current) {
			el.SetChecked(contains(current, el.Value()))
		} else {
			el.SetChecked(state.Truthy(current))
		}
	case "radio":
		el.SetChecked(current != nil && state.Stringify(current) == el.Value())
	default:
		el.SetValue(state.Stringify(current))
	}

	event := "change"
	if mods["input"] {
		event = "input"
	}
	el.AddEventListener(event, func(ev *dom.Event) error {
		value, ok := modelValue(el, scope, path, mods)
		if !ok {
			return nil
		}
		scope.Set(path, value)
		if err := rerender(); err != nil {
			return errors.NewEventHandlerError(event, el.String(), p.component, err)
		}
		return nil
	})
}

// modelValue reads the value an event should write back. ok is false when
// nothing should be written, such as an unchecked radio button.
func modelValue(el *dom.Element, scope *state.Scope, path string, mods map[string]bool) (any, bool) {
	switch el.InputType() {
	case "checkbox":
		current, _ := scope.Lookup(path)
		if !state.IsSequence(current) {
			return el.Checked(), true
		}
		items := state.Items(current)
		out := make([]any, 0, len(items)+1)
		for _, item := range items {
			if state.Stringify(item) != el.Value() {
				out = append(out, item)
			}
		}
		if el.Checked() {
			out = append(out, el.Value())
		}
		return out, true
	case "radio":
		if !el.Checked() {
			return nil, false
		}
	}

	raw := el.Value()
	if mods["trim"] {
		raw = strings.TrimSpace(raw)
	}
	if mods["number"] || el.InputType() == "number" || el.InputType() == "range" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f, true
		}
	}
	return raw, true
}

func contains(seq any, value string) bool {
	for _, item := range state.Items(seq) {
		if state.Stringify(item) == value {
			return true
		}
	}
	return false
}
