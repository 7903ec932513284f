// Package dom is the render boundary of a component instance: a parsed
// fragment of golang.org/x/net/html nodes plus the event listeners that the
// directive processor binds to them.
//
// A Root is regenerated on every render. Listeners live in a side table keyed
// by node so that the html.Node tree stays a plain x/net/html tree that can
// be serialized with html.Render.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Root is an isolated subtree, the server-side counterpart of a shadow root.
type Root struct {
	node      *html.Node
	listeners map[*html.Node]map[string][]Listener
}

// NewRoot returns an empty render boundary.
func NewRoot() *Root {
	return &Root{
		node:      &html.Node{Type: html.DocumentNode},
		listeners: make(map[*html.Node]map[string][]Listener),
	}
}

// ParseRoot parses markup into a fresh render boundary.
func ParseRoot(markup string) (*Root, error) {
	r := NewRoot()
	if err := r.SetInnerHTML(markup); err != nil {
		return nil, err
	}
	return r, nil
}

// bodyContext is the context element fragments are parsed in.
func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

// ParseFragment parses markup as children of an element named by context.
func ParseFragment(markup string, context *html.Node) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = bodyContext()
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// SetInnerHTML replaces the whole content of the root and drops all
// listeners bound to the previous content.
func (r *Root) SetInnerHTML(markup string) error {
	nodes, err := ParseFragment(markup, nil)
	if err != nil {
		return err
	}
	removeChildren(r.node)
	for _, n := range nodes {
		r.node.AppendChild(n)
	}
	r.listeners = make(map[*html.Node]map[string][]Listener)
	return nil
}

// Node returns the document node holding the rendered children.
func (r *Root) Node() *html.Node {
	return r.node
}

// HTML serializes the content of the root.
func (r *Root) HTML() string {
	return renderChildren(r.node)
}

// Wrap returns the Element view of n within this root.
func (r *Root) Wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	return &Element{Node: n, root: r}
}

// Elements returns every element in document order, depth first. Template
// content is inert and not included.
func (r *Root) Elements() []*Element {
	var out []*Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			out = append(out, r.Wrap(c))
			if c.DataAtom != atom.Template {
				walk(c)
			}
		}
	}
	walk(r.node)
	return out
}

// QuerySelectorAll returns the elements matching a CSS selector in document order.
func (r *Root) QuerySelectorAll(selector string) ([]*Element, error) {
	sel, err := CompileSelector(selector)
	if err != nil {
		return nil, err
	}
	return r.Match(sel), nil
}

// QuerySelector returns the first element matching a CSS selector, or nil.
func (r *Root) QuerySelector(selector string) (*Element, error) {
	sel, err := CompileSelector(selector)
	if err != nil {
		return nil, err
	}
	for _, n := range cascadia.QueryAll(r.node, sel) {
		if !r.inTemplate(n) {
			return r.Wrap(n), nil
		}
	}
	return nil, nil
}

// Match returns the elements matched by a precompiled selector, skipping
// inert template content.
func (r *Root) Match(sel cascadia.Matcher) []*Element {
	nodes := cascadia.QueryAll(r.node, sel)
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if !r.inTemplate(n) {
			out = append(out, r.Wrap(n))
		}
	}
	return out
}

func (r *Root) inTemplate(n *html.Node) bool {
	for p := n.Parent; p != nil && p != r.node; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Template {
			return true
		}
	}
	return false
}

// CompileSelector parses a CSS selector group.
func CompileSelector(selector string) (cascadia.Matcher, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

// ElementAt resolves a child-index path such as []int{0, 2, 1}, counting only
// element children at each level.
func (r *Root) ElementAt(path []int) *Element {
	n := r.node
	for _, idx := range path {
		n = nthElementChild(n, idx)
		if n == nil {
			return nil
		}
	}
	if n == r.node {
		return nil
	}
	return r.Wrap(n)
}

// PathOf returns the child-index path of e, the inverse of ElementAt.
func (r *Root) PathOf(e *Element) []int {
	var path []int
	for n := e.Node; n != nil && n != r.node; n = n.Parent {
		i := 0
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				i++
			}
		}
		path = append([]int{i}, path...)
	}
	return path
}

// ListenerCount returns the number of listeners bound inside the root.
func (r *Root) ListenerCount() int {
	n := 0
	for _, byType := range r.listeners {
		for _, ls := range byType {
			n += len(ls)
		}
	}
	return n
}

func nthElementChild(n *html.Node, idx int) *html.Node {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if i == idx {
			return c
		}
		i++
	}
	return nil
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// CloneNode returns a deep copy of n detached from any tree.
func CloneNode(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		clone.Attr = make([]html.Attribute, len(n.Attr))
		copy(clone.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(CloneNode(c))
	}
	return clone
}
