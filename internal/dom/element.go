package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a view of an element node inside a Root.
type Element struct {
	Node *html.Node
	root *Root
}

// Root returns the render boundary the element belongs to.
func (e *Element) Root() *Root {
	return e.root
}

// Tag returns the lower-case tag name.
func (e *Element) Tag() string {
	return e.Node.Data
}

// IsTemplate reports whether the element is an inert <template>.
func (e *Element) IsTemplate() bool {
	return e.Node.DataAtom == atom.Template || e.Node.Data == "template"
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the named attribute is present.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// Attrs returns a snapshot of the element's attributes in source order.
func (e *Element) Attrs() []html.Attribute {
	out := make([]html.Attribute, len(e.Node.Attr))
	copy(out, e.Node.Attr)
	return out
}

// SetAttr sets or adds an attribute.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			e.Node.Attr[i].Val = value
			return
		}
	}
	e.Node.Attr = append(e.Node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr removes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	attrs := e.Node.Attr[:0]
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		attrs = append(attrs, a)
	}
	e.Node.Attr = attrs
}

// SetHidden toggles visibility through the hidden attribute.
func (e *Element) SetHidden(hidden bool) {
	if hidden {
		e.SetAttr("hidden", "")
		return
	}
	e.RemoveAttr("hidden")
}

// Hidden reports whether the element is hidden.
func (e *Element) Hidden() bool {
	return e.HasAttr("hidden")
}

// Parent returns the parent element, or nil at the top of the root.
func (e *Element) Parent() *Element {
	p := e.Node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.root.Wrap(p)
}

// Children returns the element children.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.root.Wrap(c))
		}
	}
	return out
}

// Connected reports whether the element is still attached to its root.
func (e *Element) Connected() bool {
	for n := e.Node; n != nil; n = n.Parent {
		if n == e.root.node {
			return true
		}
	}
	return false
}

// Remove detaches the element and its subtree from the tree.
func (e *Element) Remove() {
	if e.Node.Parent != nil {
		e.Node.Parent.RemoveChild(e.Node)
	}
}

// SetInnerHTML replaces the children with parsed markup.
func (e *Element) SetInnerHTML(markup string) error {
	nodes, err := ParseFragment(markup, e.Node)
	if err != nil {
		return err
	}
	removeChildren(e.Node)
	for _, n := range nodes {
		e.Node.AppendChild(n)
	}
	return nil
}

// InnerHTML serializes the children.
func (e *Element) InnerHTML() string {
	return renderChildren(e.Node)
}

// OuterHTML serializes the element itself.
func (e *Element) OuterHTML() string {
	var b strings.Builder
	_ = html.Render(&b, e.Node)
	return b.String()
}

// SetText replaces the children with a single text node.
func (e *Element) SetText(text string) {
	removeChildren(e.Node)
	if text != "" {
		e.Node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// Text returns the concatenated text content.
func (e *Element) Text() string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.Node)
	return b.String()
}

// InputType returns the lower-case type of an input element.
func (e *Element) InputType() string {
	t, _ := e.Attr("type")
	return strings.ToLower(t)
}

// Value returns the current form value of the element.
func (e *Element) Value() string {
	switch e.Node.DataAtom {
	case atom.Textarea:
		return e.Text()
	case atom.Select:
		for _, opt := range e.options() {
			if opt.HasAttr("selected") {
				return opt.optionValue()
			}
		}
		if opts := e.options(); len(opts) > 0 {
			return opts[0].optionValue()
		}
		return ""
	}
	v, _ := e.Attr("value")
	return v
}

// SetValue sets the form value of the element.
func (e *Element) SetValue(value string) {
	switch e.Node.DataAtom {
	case atom.Textarea:
		e.SetText(value)
	case atom.Select:
		for _, opt := range e.options() {
			if opt.optionValue() == value {
				opt.SetAttr("selected", "")
			} else {
				opt.RemoveAttr("selected")
			}
		}
	default:
		e.SetAttr("value", value)
	}
}

// Checked reports the checked state of a checkbox or radio input.
func (e *Element) Checked() bool {
	return e.HasAttr("checked")
}

// SetChecked sets the checked state.
func (e *Element) SetChecked(checked bool) {
	if checked {
		e.SetAttr("checked", "")
		return
	}
	e.RemoveAttr("checked")
}

// IsFormControl reports whether the element carries a form value.
func (e *Element) IsFormControl() bool {
	switch e.Node.DataAtom {
	case atom.Input, atom.Textarea, atom.Select:
		return true
	}
	return e.HasAttr("contenteditable")
}

func (e *Element) options() []*Element {
	var out []*Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Option {
				out = append(out, e.root.Wrap(c))
			}
			walk(c)
		}
	}
	walk(e.Node)
	return out
}

func (e *Element) optionValue() string {
	if v, ok := e.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(e.Text())
}

// String returns a short descriptor such as button#save.primary.
func (e *Element) String() string {
	var b strings.Builder
	b.WriteString(e.Node.Data)
	if id, ok := e.Attr("id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	if class, ok := e.Attr("class"); ok {
		for _, c := range strings.Fields(class) {
			b.WriteString("." + c)
		}
	}
	return b.String()
}

// InsertBefore inserts detached nodes before the element, preserving order.
func (e *Element) InsertBefore(nodes ...*html.Node) {
	parent := e.Node.Parent
	if parent == nil {
		return
	}
	for _, n := range nodes {
		parent.InsertBefore(n, e.Node)
	}
}

// TemplateContent returns deep clones of a template element's inert content.
func (e *Element) TemplateContent() []*html.Node {
	var out []*html.Node
	for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, CloneNode(c))
	}
	return out
}
