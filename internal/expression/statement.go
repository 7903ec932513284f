package expression

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/tessera/internal/state"
	"github.com/expr-lang/expr"
)

const pathPattern = `((?:this\.)?[A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)`

var (
	assignRe  = regexp.MustCompile(`^` + pathPattern + `\s*(\+=|-=|\*=|/=|=)\s*([\s\S]+)$`)
	postfixRe = regexp.MustCompile(`^` + pathPattern + `\s*(\+\+|--)$`)
	prefixRe  = regexp.MustCompile(`^(\+\+|--)\s*` + pathPattern + `$`)
)

// binaryOps evaluate compound assignments with expr arithmetic so that
// += concatenates strings the way + does in expressions.
var binaryOps = map[string]string{
	"+=": "lhs + rhs",
	"-=": "lhs - rhs",
	"*=": "lhs * rhs",
	"/=": "lhs / rhs",
	"++": "lhs + 1",
	"--": "lhs - 1",
}

// statement is one parsed unit of a statement list.
type statement struct {
	src    string
	target string // assignment path, empty for expression statements
	op     string
	value  string
}

func parseStatement(src string) statement {
	if m := postfixRe.FindStringSubmatch(src); m != nil {
		return statement{src: src, target: m[1], op: m[2]}
	}
	if m := prefixRe.FindStringSubmatch(src); m != nil {
		return statement{src: src, target: m[2], op: m[1]}
	}
	if m := assignRe.FindStringSubmatch(src); m != nil {
		// "a == b" matches "=" followed by "= b"
		if m[2] == "=" && strings.HasPrefix(m[3], "=") {
			return statement{src: src}
		}
		return statement{src: src, target: m[1], op: m[2], value: m[3]}
	}
	return statement{src: src}
}

// Exec runs a ';'-separated statement list and returns the value of the last
// expression statement. Execution stops at the first failing statement.
func Exec(src string, scope *state.Scope, b Bindings) (any, error) {
	var last any
	for _, raw := range splitStatements(src) {
		st := parseStatement(raw)
		if st.target == "" {
			v, err := Eval(st.src, scope, b)
			if err != nil {
				return nil, err
			}
			last = v
			continue
		}
		v, err := assign(st, scope, b)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

// Check compiles every statement of src without running it.
func Check(src string) error {
	for _, raw := range splitStatements(src) {
		st := parseStatement(raw)
		code := st.src
		if st.target != "" {
			code = st.value
		}
		if code == "" {
			continue
		}
		// Every builtin is shadowed since the scope is unknown here.
		if _, err := Compile(code, builtinNames...); err != nil {
			return fmt.Errorf("%q: %w", raw, err)
		}
	}
	return nil
}

func assign(st statement, scope *state.Scope, b Bindings) (any, error) {
	var rhs any
	if st.value != "" {
		v, err := Eval(st.value, scope, b)
		if err != nil {
			return nil, err
		}
		rhs = v
	}
	if st.op == "=" {
		scope.Set(st.target, rhs)
		return rhs, nil
	}

	lhs, _ := scope.Lookup(st.target)
	if lhs == nil && (st.op == "++" || st.op == "--") {
		lhs = 0
	}
	program, err := Compile(binaryOps[st.op])
	if err != nil {
		return nil, err
	}
	v, err := expr.Run(program, map[string]any{"lhs": lhs, "rhs": rhs})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", st.src, err)
	}
	scope.Set(st.target, v)
	return v, nil
}
