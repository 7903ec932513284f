package directive

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/expression"
	"github.com/conneroisu/tessera/internal/state"
)

var loopRe = regexp.MustCompile(
	`^\s*(?:\(\s*([A-Za-z_$][\w$]*)\s*(?:,\s*([A-Za-z_$][\w$]*)\s*)?\)|([A-Za-z_$][\w$]*))\s+(?:of|in)\s+([\s\S]+?)\s*$`)

// Loop is a parsed x-for expression.
type Loop struct {
	Item       string
	Index      string
	Collection string
}

// ParseLoop parses "item of items", "item in items" and
// "(item, i) of items".
func ParseLoop(src string) (Loop, error) {
	m := loopRe.FindStringSubmatch(src)
	if m == nil {
		return Loop{}, fmt.Errorf("expected \"<var> of <expr>\", got %q", strings.TrimSpace(src))
	}
	l := Loop{Index: m[2], Collection: m[4]}
	if m[1] != "" {
		l.Item = m[1]
	} else {
		l.Item = m[3]
	}
	return l, nil
}

type iteration struct {
	key  any
	item any
}

// iterations lists the items of a collection: sequences in order, mappings
// by sorted key, and non-negative integers as a range.
func iterations(v any) ([]iteration, error) {
	switch {
	case v == nil:
		return nil, nil
	case state.IsSequence(v):
		items := state.Items(v)
		out := make([]iteration, len(items))
		for i, item := range items {
			out[i] = iteration{key: i, item: item}
		}
		return out, nil
	case state.IsMapping(v):
		fields := state.Fields(v)
		keys := state.SortedKeys(fields)
		out := make([]iteration, len(keys))
		for i, k := range keys {
			out[i] = iteration{key: k, item: fields[k]}
		}
		return out, nil
	}
	if n, ok := v.(int); ok && n >= 0 {
		out := make([]iteration, n)
		for i := range out {
			out[i] = iteration{key: i, item: i}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T is not iterable", v)
}

// expand materializes one clone of the template content per item, processes
// each clone with its own overlay frame and inserts the results before the
// template in collection order.
func (p *Processor) expand(el *dom.Element, src string, scope *state.Scope, rerender Rerender) {
	if !el.IsTemplate() {
		p.fail(el, "x-for", src, "x-for is only allowed on <template> elements")
		return
	}
	loop, err := ParseLoop(src)
	if err != nil {
		p.fail(el, "x-for", src, err.Error())
		return
	}

	collection := p.eval.Evaluate(loop.Collection, scope, expression.Bindings{Element: el})
	items, err := iterations(collection)
	if err != nil {
		p.fail(el, "x-for", src, err.Error())
		return
	}

	for i, it := range items {
		frame := map[string]any{
			loop.Item:      it.item,
			state.IndexKey: i,
		}
		if loop.Index != "" {
			frame[loop.Index] = it.key
		}

		container := &html.Node{Type: html.DocumentNode}
		for _, n := range el.TemplateContent() {
			container.AppendChild(n)
		}
		p.walk(el.Root(), container, scope.Overlay(frame), rerender)

		var nodes []*html.Node
		for c := container.FirstChild; c != nil; {
			next := c.NextSibling
			container.RemoveChild(c)
			nodes = append(nodes, c)
			c = next
		}
		el.InsertBefore(nodes...)
	}
}
