// Package style rewrites the <style> blocks of rendered component markup.
package style

import (
	"regexp"
	"strings"
)

// Preprocessor rewrites the style blocks of rendered markup. Implementations
// must leave everything outside style blocks untouched and keep block order.
type Preprocessor interface {
	Process(markup, tag string) (string, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(markup, tag string) (string, error)

// Process calls f.
func (f PreprocessorFunc) Process(markup, tag string) (string, error) {
	return f(markup, tag)
}

// Passthrough returns markup unchanged.
var Passthrough Preprocessor = PreprocessorFunc(func(markup, _ string) (string, error) {
	return markup, nil
})

// Mode selects how selectors are rewritten.
type Mode string

const (
	// ModeShadow keeps selectors as written; the shadow root scopes them.
	ModeShadow Mode = "shadow"
	// ModeScoped prefixes every selector with the component tag and turns
	// :host into the tag itself, for output without a shadow root.
	ModeScoped Mode = "scoped"
)

// Scoper rewrites style blocks for a Mode.
type Scoper struct {
	Mode Mode
}

// NewScoper returns a Scoper for mode. Unknown modes behave as ModeShadow.
func NewScoper(mode Mode) *Scoper {
	return &Scoper{Mode: mode}
}

var styleBlockRe = regexp.MustCompile(`(?is)(<style\b[^>]*>)(.*?)(</style\s*>)`)

// Process rewrites every style block in markup for the component tag.
func (s *Scoper) Process(markup, tag string) (string, error) {
	if s.Mode != ModeScoped || !strings.Contains(markup, "<style") {
		return markup, nil
	}
	return styleBlockRe.ReplaceAllStringFunc(markup, func(block string) string {
		m := styleBlockRe.FindStringSubmatch(block)
		return m[1] + ScopeCSS(m[2], tag) + m[3]
	}), nil
}

// ScopeCSS prefixes the selectors of every rule in css with tag. Rules inside
// @media, @supports and @layer blocks are scoped too; other at-rules such as
// @keyframes and @font-face are copied verbatim.
func ScopeCSS(css, tag string) string {
	var b strings.Builder
	scopeRules(&b, css, tag)
	return b.String()
}

func scopeRules(b *strings.Builder, css, tag string) {
	for len(css) > 0 {
		open := indexOutsideComments(css, '{')
		if open < 0 {
			b.WriteString(css)
			return
		}
		end := matchingBrace(css, open)
		if end < 0 {
			b.WriteString(css)
			return
		}

		prelude := css[:open]
		body := css[open+1 : end]
		trimmed := strings.TrimSpace(prelude)

		switch {
		case strings.HasPrefix(trimmed, "@media"),
			strings.HasPrefix(trimmed, "@supports"),
			strings.HasPrefix(trimmed, "@layer"),
			strings.HasPrefix(trimmed, "@container"):
			b.WriteString(prelude)
			b.WriteByte('{')
			scopeRules(b, body, tag)
			b.WriteByte('}')
		case strings.HasPrefix(trimmed, "@"):
			b.WriteString(css[:end+1])
		default:
			lead := prelude[:len(prelude)-len(strings.TrimLeft(prelude, " \t\r\n"))]
			b.WriteString(lead)
			b.WriteString(scopeSelectors(trimmed, tag))
			b.WriteString(" {")
			b.WriteString(body)
			b.WriteByte('}')
		}
		css = css[end+1:]
	}
}

var hostFuncRe = regexp.MustCompile(`^:host\(([^)]*)\)`)

func scopeSelectors(list, tag string) string {
	parts := strings.Split(list, ",")
	for i, sel := range parts {
		sel = strings.TrimSpace(sel)
		switch {
		case sel == ":host":
			sel = tag
		case hostFuncRe.MatchString(sel):
			sel = hostFuncRe.ReplaceAllString(sel, tag+"$1")
		case strings.HasPrefix(sel, ":host"):
			sel = tag + sel[len(":host"):]
		case strings.HasPrefix(sel, tag+" "), sel == tag:
		default:
			sel = tag + " " + sel
		}
		parts[i] = sel
	}
	return strings.Join(parts, ", ")
}

func indexOutsideComments(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if strings.HasPrefix(s[i:], "/*") {
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return -1
			}
			i += end + 3
			continue
		}
		if s[i] == c {
			return i
		}
	}
	return -1
}

func matchingBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
