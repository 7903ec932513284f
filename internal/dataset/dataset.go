// Package dataset turns raw host attribute strings into typed context values.
package dataset

import (
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Coerce converts every attribute with Value and names the result with Key.
func Coerce(attrs map[string]string) map[string]any {
	out := make(map[string]any, len(attrs))
	for name, raw := range attrs {
		out[Key(name)] = Value(raw)
	}
	return out
}

// Key strips a data- prefix and camel-cases kebab-case names, so
// "data-user-id" becomes "userId".
func Key(name string) string {
	name = strings.TrimPrefix(strings.ToLower(name), "data-")
	if !strings.Contains(name, "-") {
		return name
	}
	var b strings.Builder
	upper := false
	for _, r := range name {
		if r == '-' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Value parses JSON-like strings (objects, arrays, numbers, booleans and
// null) and passes every other string through unchanged.
func Value(raw string) any {
	s := strings.TrimSpace(raw)
	if !looksLikeJSON(s) {
		return raw
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return raw
	}
	return v
}

func looksLikeJSON(s string) bool {
	if s == "" {
		return false
	}
	switch s {
	case "true", "false", "null":
		return true
	}
	switch c := s[0]; {
	case c == '{':
		return strings.HasSuffix(s, "}")
	case c == '[':
		return strings.HasSuffix(s, "]")
	case c == '-' || (c >= '0' && c <= '9'):
		return isNumber(s)
	}
	return false
}

// isNumber accepts the JSON number grammar.
func isNumber(s string) bool {
	i := 0
	if s[i] == '-' {
		i++
	}
	digits := func() int {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		return i - start
	}
	if digits() == 0 {
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		if digits() == 0 {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if digits() == 0 {
			return false
		}
	}
	return i == len(s)
}
