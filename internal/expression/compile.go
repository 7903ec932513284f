// Package expression evaluates template expressions and handler statements
// against a component's scope chain.
//
// Expressions use the github.com/expr-lang/expr language: property and index
// access, calls, boolean, comparison and arithmetic operators, ternaries,
// nil-coalescing and collection literals. Conditions follow script
// truthiness, && and || yield an operand, and + concatenates when either side
// is a string. Scope variables shadow builtins of the same name. Statements
// add assignment, compound assignment and increment forms on top of it,
// separated by ';'.
package expression

import (
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// programs caches compiled programs by normalized source and shadowed
// builtins.
var programs sync.Map

type programKey struct {
	src      string
	shadowed string
}

// Compile compiles an expression, returning a cached program when the same
// source was compiled with the same shadowed builtins before. Shadowed names
// resolve against the environment instead of expr's builtin functions; pass
// them sorted, as Shadowed returns them.
func Compile(src string, shadowed ...string) (*vm.Program, error) {
	src = Normalize(src)
	key := programKey{src: src, shadowed: strings.Join(shadowed, ",")}
	if p, ok := programs.Load(key); ok {
		return p.(*vm.Program), nil
	}
	program, err := expr.Compile(src, compileOptions(shadowed)...)
	if err != nil {
		return nil, err
	}
	actual, _ := programs.LoadOrStore(key, program)
	return actual.(*vm.Program), nil
}

// CacheSize returns the number of cached programs.
func CacheSize() int {
	n := 0
	programs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Normalize rewrites strict equality operators to their expr forms and trims
// surrounding whitespace. String literals are left untouched.
func Normalize(src string) string {
	src = strings.TrimSpace(src)
	if !strings.Contains(src, "==") {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			b.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(src) {
					i++
					b.WriteByte(src[i])
				}
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '=', '!':
			if strings.HasPrefix(src[i+1:], "==") {
				b.WriteByte(c)
				b.WriteByte('=')
				i += 2
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// splitStatements splits src on top-level semicolons, ignoring those inside
// string literals and brackets. Empty statements are dropped.
func splitStatements(src string) []string {
	var out []string
	var quote byte
	depth := 0
	start := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				if s := strings.TrimSpace(src[start:i]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(src[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
