package component

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/expression"
)

// Behavior is the parsed behavior block of a definition:
//
//	state:
//	  count: 0
//	methods:
//	  increment: count++
//	  "select(item)": selected = item
//	on:
//	  "button.reset":
//	    click: count = 0; $render()
//	mounted: ready = true
//	rendered: renders += 1
//
// Method bodies, hooks and handlers are statement lists. A method returns
// the value of its last expression statement.
type Behavior struct {
	State    map[string]any               `yaml:"state"`
	Methods  map[string]string            `yaml:"methods"`
	On       map[string]map[string]string `yaml:"on"`
	Mounted  string                       `yaml:"mounted"`
	Rendered string                       `yaml:"rendered"`
}

// MethodSpec is a method declaration split into name and parameters.
type MethodSpec struct {
	Name   string
	Params []string
	Body   string
}

// SelectorHandler binds one event of the elements matched by a selector.
type SelectorHandler struct {
	Selector string
	Event    string
	Body     string
}

var methodKeyRe = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*)\s*(?:\(\s*([^)]*)\))?\s*$`)

// ParseBehavior decodes a behavior block. Unknown top-level keys are errors.
func ParseBehavior(src string) (*Behavior, error) {
	dec := yaml.NewDecoder(strings.NewReader(dedent(src)))
	dec.KnownFields(true)

	var b Behavior
	if err := dec.Decode(&b); err != nil {
		if err == io.EOF {
			return &b, nil
		}
		return nil, fmt.Errorf("behavior block: %w", err)
	}
	return &b, nil
}

// MethodSpecs returns the methods sorted by name.
func (b *Behavior) MethodSpecs() ([]MethodSpec, error) {
	specs := make([]MethodSpec, 0, len(b.Methods))
	for key, body := range b.Methods {
		m := methodKeyRe.FindStringSubmatch(key)
		if m == nil {
			return nil, fmt.Errorf("invalid method declaration %q", key)
		}
		spec := MethodSpec{Name: m[1], Body: body}
		for _, p := range strings.Split(m[2], ",") {
			if p = strings.TrimSpace(p); p != "" {
				spec.Params = append(spec.Params, p)
			}
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// Handlers returns the selector handlers ordered by selector, then event.
func (b *Behavior) Handlers() []SelectorHandler {
	var out []SelectorHandler
	for sel, events := range b.On {
		for event, body := range events {
			out = append(out, SelectorHandler{Selector: sel, Event: event, Body: body})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Selector != out[j].Selector {
			return out[i].Selector < out[j].Selector
		}
		return out[i].Event < out[j].Event
	})
	return out
}

// Compile checks every statement and selector of the block.
func (b *Behavior) Compile() error {
	specs, err := b.MethodSpecs()
	if err != nil {
		return err
	}
	for _, m := range specs {
		if err := expression.Check(m.Body); err != nil {
			return fmt.Errorf("method %s: %w", m.Name, err)
		}
	}
	for _, h := range b.Handlers() {
		if _, err := dom.CompileSelector(h.Selector); err != nil {
			return err
		}
		if err := expression.Check(h.Body); err != nil {
			return fmt.Errorf("handler %s %s: %w", h.Selector, h.Event, err)
		}
	}
	if err := expression.Check(b.Mounted); err != nil {
		return fmt.Errorf("mounted hook: %w", err)
	}
	if err := expression.Check(b.Rendered); err != nil {
		return fmt.Errorf("rendered hook: %w", err)
	}
	return nil
}

// dedent strips the whitespace prefix shared by every non-blank line, so
// blocks indented to match the surrounding markup decode as YAML.
func dedent(src string) string {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = lead
			first = false
			continue
		}
		for !strings.HasPrefix(lead, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(strings.TrimPrefix(line, prefix))
		buf.WriteByte('\n')
	}
	return buf.String()
}
