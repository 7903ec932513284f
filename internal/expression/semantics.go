package expression

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm/runtime"

	"github.com/conneroisu/tessera/internal/state"
)

// Functions injected by the script semantics patch. The '$' prefix keeps
// them out of reach of author identifiers.
const (
	truthyFunc = "$truthy"
	addFunc    = "$add"
)

// builtinNames lists expr's builtin functions, sorted.
var builtinNames = func() []string {
	names := append([]string(nil), builtin.Names...)
	sort.Strings(names)
	return names
}()

// Shadowed returns the builtin names that env defines, sorted. Scope
// variables win over builtins of the same name.
func Shadowed(env map[string]any) []string {
	var out []string
	for _, name := range builtinNames {
		if _, ok := env[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func compileOptions(shadowed []string) []expr.Option {
	opts := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function(truthyFunc, truthy, new(func(any) bool)),
		expr.Function(addFunc, add),
		expr.Patch(&scriptSemantics{}),
	}
	for _, name := range shadowed {
		opts = append(opts, expr.DisableBuiltin(name))
	}
	return opts
}

func truthy(params ...any) (any, error) {
	return state.Truthy(params[0]), nil
}

// add concatenates when either operand is a string and otherwise uses expr's
// arithmetic.
func add(params ...any) (result any, err error) {
	a, b := params[0], params[1]
	_, aString := a.(string)
	_, bString := b.(string)
	if aString || bString {
		return state.Stringify(a) + state.Stringify(b), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return runtime.Add(a, b), nil
}

// scriptSemantics rewrites conditions to use script truthiness. Negations and
// ternary conditions accept any operand; && and || return the deciding
// operand instead of a bool, evaluating the left side once.
type scriptSemantics struct {
	operands int
}

func (s *scriptSemantics) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.UnaryNode:
		if n.Operator == "!" || n.Operator == "not" {
			n.Node = truthyCall(n.Node)
		}
	case *ast.ConditionalNode:
		n.Cond = truthyCall(n.Cond)
	case *ast.BinaryNode:
		switch n.Operator {
		case "&&", "and", "||", "or":
			ast.Patch(node, s.shortCircuit(n))
		case "+":
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: addFunc},
				Arguments: []ast.Node{n.Left, n.Right},
			})
		}
	}
}

// shortCircuit turns "a && b" into "let t = a; truthy(t) ? b : t" and
// "a || b" into "let t = a; truthy(t) ? t : b".
func (s *scriptSemantics) shortCircuit(n *ast.BinaryNode) ast.Node {
	name := fmt.Sprintf("$operand%d", s.operands)
	s.operands++
	ref := func() ast.Node { return &ast.IdentifierNode{Value: name} }

	cond := &ast.ConditionalNode{Cond: truthyCall(ref())}
	if n.Operator == "&&" || n.Operator == "and" {
		cond.Exp1, cond.Exp2 = n.Right, ref()
	} else {
		cond.Exp1, cond.Exp2 = ref(), n.Right
	}
	return &ast.VariableDeclaratorNode{Name: name, Value: n.Left, Expr: cond}
}

func truthyCall(n ast.Node) ast.Node {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: truthyFunc},
		Arguments: []ast.Node{n},
	}
}
