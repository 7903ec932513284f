// Package component implements the lifecycle of declaratively defined
// components: definitions parsed from <template> declarations, per-instance
// behavior, hosts and the render sequence that ties them together.
package component

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/tessera/internal/errors"
)

// Role restricts how a component participates in its document.
type Role string

const (
	// RolePlain is an ordinary element.
	RolePlain Role = ""
	// RoleForm is a form-associated element exposing a form value.
	RoleForm Role = "form"
)

// ContentObserver is the observed-list entry declaring interest in light
// content mutations.
const ContentObserver = "#content"

// Definition is an immutable component declaration.
type Definition struct {
	Name            string
	Role            Role
	Observed        []string
	ObservesContent bool
	Markup          string
	Behavior        *Behavior
	Source          string
}

// Observes reports whether attribute changes of name trigger a re-render.
// Attribute names are case-insensitive.
func (d *Definition) Observes(name string) bool {
	name = strings.ToLower(name)
	for _, o := range d.Observed {
		if o == name {
			return true
		}
	}
	return false
}

// Validate checks the declaration and compiles the behavior block.
func (d *Definition) Validate() error {
	if !ValidName(d.Name) {
		return errors.ErrInvalidDefinition(d.Name, "name must be a lower-case custom element name containing a hyphen")
	}
	if d.Role != RolePlain && d.Role != RoleForm {
		return errors.ErrInvalidDefinition(d.Name, fmt.Sprintf("unknown role %q", d.Role))
	}
	if d.Behavior != nil {
		if err := d.Behavior.Compile(); err != nil {
			return errors.WrapLifecycle(err, d.Name, "prepare")
		}
	}
	return nil
}

// ValidName reports whether name is usable as a custom element name.
func ValidName(name string) bool {
	if name == "" || !strings.Contains(name, "-") {
		return false
	}
	if name[0] < 'a' || name[0] > 'z' {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// behaviorTypes are the script types holding a behavior block.
var behaviorTypes = map[string]bool{
	"application/yaml":   true,
	"text/yaml":          true,
	"application/x-yaml": true,
}

// ParseDefinitions extracts every <template name="..."> declaration from a
// document. source names the document in errors.
func ParseDefinitions(document, source string) ([]*Definition, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInvalidDefinition, "parse "+source)
	}

	var (
		defs []*Definition
		errs []error
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Template && hasAttr(c, "name") {
				def, err := definitionFromNode(c, source)
				if err != nil {
					errs = append(errs, err)
				} else {
					defs = append(defs, def)
				}
				continue
			}
			walk(c)
		}
	}
	walk(doc)

	if len(errs) > 0 {
		return defs, errors.CombineErrors(errs...)
	}
	return defs, nil
}

// ParseDefinition parses a document expected to declare exactly one component.
func ParseDefinition(document, source string) (*Definition, error) {
	defs, err := ParseDefinitions(document, source)
	if err != nil {
		return nil, err
	}
	if len(defs) != 1 {
		return nil, errors.ErrInvalidDefinition("", fmt.Sprintf("%s declares %d components, want 1", source, len(defs)))
	}
	return defs[0], nil
}

func definitionFromNode(n *html.Node, source string) (*Definition, error) {
	def := &Definition{
		Name:   strings.ToLower(strings.TrimSpace(attr(n, "name"))),
		Role:   Role(strings.TrimSpace(attr(n, "as"))),
		Source: source,
	}
	for _, o := range strings.Split(attr(n, "observed"), ",") {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case o == ContentObserver:
			def.ObservesContent = true
		default:
			def.Observed = append(def.Observed, strings.ToLower(o))
		}
	}

	var markup strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Script && behaviorTypes[strings.ToLower(attr(c, "type"))] {
			if def.Behavior != nil {
				return nil, errors.ErrInvalidDefinition(def.Name, "more than one behavior block")
			}
			b, err := ParseBehavior(scriptText(c))
			if err != nil {
				return nil, errors.WrapLifecycle(err, def.Name, "parse behavior")
			}
			def.Behavior = b
			continue
		}
		if err := html.Render(&markup, c); err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeInvalidDefinition, "render template content")
		}
	}
	def.Markup = strings.TrimSpace(markup.String())

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func scriptText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
