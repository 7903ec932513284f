package expression

import (
	stderrors "errors"
	"testing"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalResolvesScopeChain(t *testing.T) {
	ctx := state.Context{
		"count": 2,
		"user":  map[string]any{"name": "Ada", "admin": true},
		"items": []any{"a", "b", "c"},
	}
	scope := state.NewScope(ctx).Overlay(map[string]any{"item": "b", state.IndexKey: 1})

	tests := []struct {
		name string
		src  string
		want any
	}{
		{"arithmetic", "count * 3 + 1", 7},
		{"nested property", "user.name", "Ada"},
		{"index", "items[_idx]", "b"},
		{"loop variable", "item == items[1]", true},
		{"strict equality", "count === 2", true},
		{"strict inequality", "user.name !== 'Ada'", false},
		{"ternary", "user.admin ? 'yes' : 'no'", "yes"},
		{"this receiver", "this.count", 2},
		{"nil coalescing", "missing ?? 'fallback'", "fallback"},
		{"undefined is nil", "missing", nil},
		{"quoted operator untouched", "'a===b'", "a===b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.src, scope, Bindings{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalCallsContextFunctions(t *testing.T) {
	ctx := state.Context{
		"greet": func(args ...any) any { return "hi " + args[0].(string) },
	}
	got, err := Eval("greet('bob')", state.NewScope(ctx), Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "hi bob", got)
}

func TestEvalBindings(t *testing.T) {
	type target struct{ Value string }
	el := &target{Value: "typed"}

	got, err := Eval("$el.Value", state.NewScope(nil), Bindings{Element: el})
	require.NoError(t, err)
	assert.Equal(t, "typed", got)
}

func TestEvalSyntaxError(t *testing.T) {
	_, err := Eval("count +", state.NewScope(nil), Bindings{})
	assert.Error(t, err)
}

func TestExecAssignments(t *testing.T) {
	ctx := state.Context{"count": 1, "label": "a"}
	scope := state.NewScope(ctx)

	_, err := Exec("count++; count += 2; label += 'b'; this.flag = !false; user.email = 'x@y.z'", scope, Bindings{})
	require.NoError(t, err)

	assert.Equal(t, 4, ctx["count"])
	assert.Equal(t, "ab", ctx["label"])
	assert.Equal(t, true, ctx["flag"])
	email, ok := state.Lookup(ctx, "user.email")
	require.True(t, ok)
	assert.Equal(t, "x@y.z", email)
}

func TestExecIncrementsMissingFromZero(t *testing.T) {
	ctx := state.Context{}
	_, err := Exec("--n; --n", state.NewScope(ctx), Bindings{})
	require.NoError(t, err)
	assert.Equal(t, -2, ctx["n"])
}

func TestExecComparisonIsNotAssignment(t *testing.T) {
	ctx := state.Context{"a": 1}
	got, err := Exec("a == 1", state.NewScope(ctx), Bindings{})
	require.NoError(t, err)
	assert.Equal(t, true, got)
	assert.Equal(t, 1, ctx["a"])
}

func TestExecReturnsLastValue(t *testing.T) {
	ctx := state.Context{"a": 1}
	got, err := Exec("a = 5; a * 2", state.NewScope(ctx), Bindings{})
	require.NoError(t, err)
	assert.Equal(t, 10, got)
}

func TestExecWritesToOwningFrame(t *testing.T) {
	ctx := state.Context{"selected": nil}
	loop := state.NewScope(ctx).Overlay(map[string]any{"item": "b"})

	_, err := Exec("selected = item; item = 'changed'", loop, Bindings{})
	require.NoError(t, err)

	assert.Equal(t, "b", ctx["selected"])
	_, leaked := ctx["item"]
	assert.False(t, leaked)
}

func TestExecSemicolonsInsideLiterals(t *testing.T) {
	ctx := state.Context{}
	_, err := Exec(`msg = "a;b"; list = [1, 2]`, state.NewScope(ctx), Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "a;b", ctx["msg"])
	assert.Equal(t, []any{1, 2}, ctx["list"])
}

func TestExecRender(t *testing.T) {
	renders := 0
	b := Bindings{Render: func() error {
		renders++
		return nil
	}}
	_, err := Exec("$render(); $render()", state.NewScope(nil), b)
	require.NoError(t, err)
	assert.Equal(t, 2, renders)

	failing := Bindings{Render: func() error { return stderrors.New("render broke") }}
	_, err = Exec("$render()", state.NewScope(nil), failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render broke")
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("count++; total = count * 2; go()"))
	assert.Error(t, Check("count = (1 +"))
}

func TestEvaluatorSwallowsAndReports(t *testing.T) {
	var reported []error
	ev := New(nil, WithComponent("user-card"), WithReporter(func(err error) {
		reported = append(reported, err)
	}))

	assert.Nil(t, ev.Evaluate("1 +", state.NewScope(nil), Bindings{}))
	ev.EvaluateStatement("x = (", state.NewScope(nil), Bindings{})

	require.Len(t, reported, 2)
	for _, err := range reported {
		assert.True(t, errors.IsType(err, errors.ErrorTypeExpression))
		assert.False(t, errors.Propagates(err))
		assert.Contains(t, err.Error(), "user-card")
	}
}

func TestCompileCaches(t *testing.T) {
	p1, err := Compile("cacheProbe + 1")
	require.NoError(t, err)
	p2, err := Compile("  cacheProbe + 1  ")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Positive(t, CacheSize())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a == b && c != d", Normalize(" a === b && c !== d "))
	assert.Equal(t, `x == "==="`, Normalize(`x === "==="`))
	assert.Equal(t, "a <= b", Normalize("a <= b"))
}

func TestEvalScopeShadowsBuiltins(t *testing.T) {
	names := []string{
		"count", "len", "max", "min", "sum", "first", "last", "type", "keys",
		"values", "filter", "map", "all", "any", "now", "date", "abs", "upper",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			scope := state.NewScope(state.Context{name: 5})

			got, err := Eval(name+" > 0", scope, Bindings{})
			require.NoError(t, err)
			assert.Equal(t, true, got)

			got, err = Eval(name+" + 1", scope, Bindings{})
			require.NoError(t, err)
			assert.Equal(t, 6, got)
		})
	}
}

func TestEvalBuiltinsWithoutShadowing(t *testing.T) {
	scope := state.NewScope(state.Context{"items": []any{1, 2, 3}, "name": "ada"})

	got, err := Eval("len(items)", scope, Bindings{})
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = Eval("upper(name)", scope, Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "ADA", got)

	got, err = Eval("filter(items, # > 1)", scope, Bindings{})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 3}, got)
}

func TestExecAssignsBuiltinNamedField(t *testing.T) {
	ctx := state.Context{"count": 1}
	_, err := Exec("this.count = count + 1; count += count", state.NewScope(ctx), Bindings{})
	require.NoError(t, err)
	assert.Equal(t, 4, ctx["count"])
}

func TestEvalScriptTruthiness(t *testing.T) {
	ctx := state.Context{
		"selected": nil,
		"picked":   map[string]any{"name": "b"},
		"user":     map[string]any{"name": "ann"},
		"items":    []any{},
		"empty":    "",
		"zero":     0,
	}
	scope := state.NewScope(ctx)

	tests := []struct {
		name string
		src  string
		want any
	}{
		{"nil condition", "selected ? 'yes' : 'no'", "no"},
		{"map condition", "picked ? picked.name : 'none'", "b"},
		{"empty string condition", "empty ? 'set' : 'unset'", "unset"},
		{"negated nil", "!selected", true},
		{"negated map", "!user", false},
		{"negated empty string", "not empty", true},
		{"and yields falsy operand", "selected && 'yes'", nil},
		{"and yields right operand", "user && user.name", "ann"},
		{"and with zero", "zero && 'never'", 0},
		{"or yields right operand", "empty || 'none'", "none"},
		{"empty collection is truthy", "items || 'none'", []any{}},
		{"nested", "(selected || picked) && !zero", true},
		{"bool operands unchanged", "true && false || true", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.src, scope, Bindings{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalShortCircuits(t *testing.T) {
	calls := 0
	ctx := state.Context{
		"touch": func(args ...any) any {
			calls++
			return "touched"
		},
	}
	scope := state.NewScope(ctx)

	got, err := Eval("false && touch()", scope, Bindings{})
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = Eval("touch() || 'other'", scope, Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "touched", got)
	assert.Equal(t, 1, calls)
}

func TestEvalStringConcatenation(t *testing.T) {
	scope := state.NewScope(state.Context{"r": "row", "price": 2.5}).
		Overlay(map[string]any{state.IndexKey: 3})

	tests := []struct {
		src  string
		want any
	}{
		{"r + ':' + _idx", "row:3"},
		{"_idx + 1 + 'x'", "4x"},
		{"'$' + price", "$2.5"},
		{"_idx + 0.5", 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src, scope, Bindings{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Eval("[1] + 1", scope, Bindings{})
	assert.Error(t, err)
}

func TestShadowed(t *testing.T) {
	assert.Equal(t, []string{"count", "len"}, Shadowed(map[string]any{"len": 1, "title": "x", "count": 2}))
	assert.Empty(t, Shadowed(map[string]any{"title": "x"}))
}
