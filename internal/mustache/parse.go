// Package mustache compiles mustache-style templates against a scope chain.
//
// Supported tags: {{path}} escaped interpolation, {{{path}}} and {{&path}}
// raw interpolation, {{#key}}...{{/key}} sections, {{^key}}...{{/key}}
// inverted sections and {{! comments }}. Interpolation only performs dotted
// path lookup; it never calls functions.
//
// A template is parsed into a tree once and rendered from the tree, so
// rendered values are never scanned for delimiters again.
package mustache

import (
	"strings"
	"sync"

	"github.com/conneroisu/tessera/internal/errors"
)

type kind int

const (
	textNode kind = iota
	escapedNode
	rawNode
	sectionNode
	invertedNode
)

type node struct {
	kind     kind
	text     string // literal text or lookup key
	children []*node
}

// Template is a parsed template.
type Template struct {
	source string
	nodes  []*node
}

// Source returns the text the template was parsed from.
func (t *Template) Source() string {
	return t.source
}

var templates sync.Map

// Parse parses src into a Template. Parsed templates are cached by source.
// Unbalanced sections yield a compilation error.
func Parse(src string) (*Template, error) {
	if t, ok := templates.Load(src); ok {
		return t.(*Template), nil
	}
	nodes, err := parse(src)
	if err != nil {
		return nil, err
	}
	t := &Template{source: src, nodes: nodes}
	actual, _ := templates.LoadOrStore(src, t)
	return actual.(*Template), nil
}

type openSection struct {
	n      *node
	offset int
	parent []*node
}

func parse(src string) ([]*node, error) {
	var (
		out   []*node
		stack []openSection
		pos   int
	)

	emitText := func(s string) {
		if s == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].kind == textNode {
			out[n-1].text += s
			return
		}
		out = append(out, &node{kind: textNode, text: s})
	}

	for pos < len(src) {
		start := strings.Index(src[pos:], "{{")
		if start < 0 {
			emitText(src[pos:])
			break
		}
		start += pos
		emitText(src[pos:start])

		tag, end, ok := readTag(src, start)
		if !ok {
			// no closing delimiter: the rest is literal text
			emitText(src[start:])
			break
		}
		pos = end

		switch {
		case tag.raw:
			out = append(out, &node{kind: rawNode, text: tag.key})
		case tag.sigil == '!':
			// comment
		case tag.sigil == '&':
			out = append(out, &node{kind: rawNode, text: tag.key})
		case tag.sigil == '#' || tag.sigil == '^':
			k := sectionNode
			if tag.sigil == '^' {
				k = invertedNode
			}
			n := &node{kind: k, text: tag.key}
			stack = append(stack, openSection{n: n, offset: start, parent: out})
			out = nil
		case tag.sigil == '/':
			if len(stack) == 0 {
				return nil, errors.ErrUnbalancedSection(tag.key, start)
			}
			top := stack[len(stack)-1]
			if top.n.text != tag.key {
				return nil, errors.ErrUnbalancedSection(top.n.text, top.offset)
			}
			stack = stack[:len(stack)-1]
			top.n.children = out
			out = append(top.parent, top.n)
		default:
			out = append(out, &node{kind: escapedNode, text: tag.key})
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, errors.ErrUnbalancedSection(top.n.text, top.offset)
	}
	return out, nil
}

type tag struct {
	raw   bool
	sigil byte
	key   string
}

// readTag reads the tag starting at src[start:] ("{{"). It returns the tag and
// the offset just past its closing delimiter.
func readTag(src string, start int) (tag, int, bool) {
	if strings.HasPrefix(src[start:], "{{{") {
		end := strings.Index(src[start+3:], "}}}")
		if end < 0 {
			return tag{}, 0, false
		}
		key := strings.TrimSpace(src[start+3 : start+3+end])
		return tag{raw: true, key: key}, start + 3 + end + 3, true
	}

	end := strings.Index(src[start+2:], "}}")
	if end < 0 {
		return tag{}, 0, false
	}
	body := strings.TrimSpace(src[start+2 : start+2+end])
	next := start + 2 + end + 2

	var t tag
	if body != "" {
		switch body[0] {
		case '#', '^', '/', '!', '&':
			t.sigil = body[0]
			body = strings.TrimSpace(body[1:])
		}
	}
	t.key = body
	return t, next, true
}
