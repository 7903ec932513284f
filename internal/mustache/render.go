package mustache

import (
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/tessera/internal/state"
)

// Render parses src and renders it against scope.
func Render(src string, scope *state.Scope) (string, error) {
	t, err := Parse(src)
	if err != nil {
		return "", err
	}
	return t.Render(scope), nil
}

// Render renders the template against scope. A nil scope renders against an
// empty context.
func (t *Template) Render(scope *state.Scope) string {
	if scope == nil {
		scope = state.NewScope(nil)
	}
	var b strings.Builder
	renderNodes(&b, t.nodes, scope)
	return b.String()
}

func renderNodes(b *strings.Builder, nodes []*node, scope *state.Scope) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case escapedNode:
			v, _ := scope.Lookup(n.text)
			b.WriteString(templ.EscapeString(state.Stringify(v)))
		case rawNode:
			v, _ := scope.Lookup(n.text)
			b.WriteString(state.Stringify(v))
		case sectionNode:
			renderSection(b, n, scope)
		case invertedNode:
			v, _ := scope.Lookup(n.text)
			if empty(v) {
				renderNodes(b, n.children, scope)
			}
		}
	}
}

func renderSection(b *strings.Builder, n *node, scope *state.Scope) {
	v, _ := scope.Lookup(n.text)
	if state.IsSequence(v) {
		for _, item := range state.Items(v) {
			renderNodes(b, n.children, scope.Overlay(itemFrame(item)))
		}
		return
	}
	if state.Truthy(v) {
		renderNodes(b, n.children, scope.Overlay(itemFrame(v)))
	}
}

// itemFrame exposes item under the current-item key and, for mappings, under
// its own keys.
func itemFrame(item any) map[string]any {
	fields := state.Fields(item)
	frame := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		frame[k] = v
	}
	frame[state.CurrentKey] = item
	return frame
}

// empty reports whether an inverted section on v renders.
func empty(v any) bool {
	if state.IsSequence(v) {
		return len(state.Items(v)) == 0
	}
	return !state.Truthy(v)
}
