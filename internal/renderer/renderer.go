// Package renderer upgrades the registered custom elements of a page into
// component instances and serializes them as declarative shadow DOM.
//
// Each host gets its own instance. A failing instance is reported on the
// page and its host is left as written; the rest of the page still renders.
// Components used inside a component's markup are upgraded recursively up
// to a nesting limit.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/style"
)

// DefaultMaxDepth bounds component nesting.
const DefaultMaxDepth = 8

// ErrorAttribute is set on hosts whose instance failed.
const ErrorAttribute = "data-tessera-error"

// Options configures a ComponentRenderer.
type Options struct {
	MaxDepth         int
	Mode             style.Mode
	ComponentOptions []component.Option
}

// ComponentRenderer renders pages against a registry.
type ComponentRenderer struct {
	registry *registry.ComponentRegistry
	logger   logging.Logger
	failures *errors.ErrorHandler
	opts     Options
	style    style.Preprocessor
}

// Upgrade records one host upgraded during a render.
type Upgrade struct {
	Name     string
	Depth    int
	Instance *component.Instance
	Err      error
}

// Page is the result of a render.
type Page struct {
	HTML     string
	Upgrades []*Upgrade
	Errors   *errors.ErrorCollector
}

// Failed returns the upgrades whose instance could not render.
func (p *Page) Failed() []*Upgrade {
	var out []*Upgrade
	for _, u := range p.Upgrades {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// NewComponentRenderer creates a renderer.
func NewComponentRenderer(reg *registry.ComponentRegistry, logger logging.Logger, opts Options) *ComponentRenderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Mode == "" {
		opts.Mode = style.ModeShadow
	}
	return &ComponentRenderer{
		registry: reg,
		logger:   logger,
		failures: errors.NewErrorHandler(logger),
		opts:     opts,
		style:    style.NewScoper(opts.Mode),
	}
}

// RenderPage renders a full document.
func (r *ComponentRenderer) RenderPage(ctx context.Context, markup string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInvalidDefinition, "parse page")
	}
	page := r.newPage()
	if err := r.upgradeTree(ctx, page, doc, 0); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "serialize page", err)
	}
	page.HTML = buf.String()
	return page, nil
}

// Render renders markup as a page when it starts with a doctype or an html
// element and as a fragment otherwise.
func (r *ComponentRenderer) Render(ctx context.Context, markup string) (*Page, error) {
	if IsDocument(markup) {
		return r.RenderPage(ctx, markup)
	}
	return r.RenderFragment(ctx, markup)
}

// IsDocument reports whether markup is a full document.
func IsDocument(markup string) bool {
	head := strings.ToLower(strings.TrimSpace(markup))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

// RenderFragment renders markup parsed as body content.
func (r *ComponentRenderer) RenderFragment(ctx context.Context, markup string) (*Page, error) {
	nodes, err := dom.ParseFragment(markup, nil)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInvalidDefinition, "parse fragment")
	}
	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	page := r.newPage()
	if err := r.upgradeTree(ctx, page, container, 0); err != nil {
		return nil, err
	}
	page.HTML = renderChildren(container)
	return page, nil
}

// RenderComponent renders one registered component as a standalone host.
func (r *ComponentRenderer) RenderComponent(ctx context.Context, name string, attrs map[string]string, content string) (*Page, error) {
	if _, err := r.registry.Lookup(name); err != nil {
		return nil, err
	}
	return r.RenderFragment(ctx, HostMarkup(name, attrs, content))
}

// HostMarkup builds the opening and closing tags of a host element with
// attributes sorted by name.
func HostMarkup(name string, attrs map[string]string, content string) string {
	n := &html.Node{Type: html.ElementNode, Data: name}
	for _, k := range sortedKeys(attrs) {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	out := buf.String()
	closing := "</" + name + ">"
	return strings.TrimSuffix(out, closing) + content + closing
}

func (r *ComponentRenderer) newPage() *Page {
	return &Page{Errors: errors.NewErrorCollector(0)}
}

// upgradeTree walks the children of n, upgrading registered elements.
// Template content is inert.
func (r *ComponentRenderer) upgradeTree(ctx context.Context, page *Page, n *html.Node, depth int) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Type != html.ElementNode || c.DataAtom == atom.Template {
			continue
		}
		if def, ok := r.registry.Get(c.Data); ok {
			if !r.upgrade(ctx, page, c, def, depth) {
				continue
			}
		}
		if err := r.upgradeTree(ctx, page, c, depth); err != nil {
			return err
		}
	}
	return nil
}

// upgrade renders one host in place and reports whether its remaining
// children are light content still to be walked.
func (r *ComponentRenderer) upgrade(ctx context.Context, page *Page, host *html.Node, def *component.Definition, depth int) bool {
	up := &Upgrade{Name: def.Name, Depth: depth}
	page.Upgrades = append(page.Upgrades, up)

	if depth >= r.opts.MaxDepth {
		e := errors.NewLifecycleError(def.Name, "upgrade",
			fmt.Errorf("component nesting exceeded %d", r.opts.MaxDepth))
		e.Code = errors.ErrCodeRenderDepthReached
		up.Err = e
		page.Errors.AddError(e)
		setAttr(host, ErrorAttribute, e.Error())
		return true
	}

	attrs := make(map[string]string, len(host.Attr))
	for _, a := range host.Attr {
		attrs[a.Key] = a.Val
	}
	h := component.NewHostElement(def.Name, attrs, renderChildren(host))
	if err := h.Connect(); err != nil {
		up.Err = err
		r.failures.Handle(ctx, err, "component host connect failed", "component", def.Name)
		setAttr(host, ErrorAttribute, err.Error())
		return true
	}

	opts := append([]component.Option{
		component.WithLogger(r.logger),
		component.WithStyle(r.style),
		component.WithErrorCollector(page.Errors),
	}, r.opts.ComponentOptions...)
	inst, err := component.Mount(def, h, opts...)
	up.Instance = inst
	if err != nil {
		up.Err = err
		r.failures.Handle(ctx, err, "component upgrade failed", "component", def.Name, "depth", depth)
		setAttr(host, ErrorAttribute, err.Error())
		return true
	}

	shadow := dom.CloneNode(inst.Root().Node())
	if err := r.upgradeTree(ctx, page, shadow, depth+1); err != nil {
		up.Err = err
		return false
	}

	descend := true
	switch r.opts.Mode {
	case style.ModeScoped:
		removeChildren(host)
		moveChildren(host, shadow)
		descend = false
	default:
		tmpl := &html.Node{
			Type:     html.ElementNode,
			Data:     "template",
			DataAtom: atom.Template,
			Attr:     []html.Attribute{{Key: "shadowrootmode", Val: "open"}},
		}
		moveChildren(tmpl, shadow)
		host.InsertBefore(tmpl, host.FirstChild)
	}

	if name, ok := attrs["name"]; ok && name != "" {
		if value, ok := inst.FormValue(); ok {
			host.AppendChild(&html.Node{
				Type:     html.ElementNode,
				Data:     "input",
				DataAtom: atom.Input,
				Attr: []html.Attribute{
					{Key: "type", Val: "hidden"},
					{Key: "name", Val: name},
					{Key: "value", Val: value},
				},
			})
		}
	}
	return descend
}

func moveChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; {
		next := c.NextSibling
		src.RemoveChild(c)
		dst.AppendChild(c)
		c = next
	}
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

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
