package state

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupShortCircuits(t *testing.T) {
	ctx := Context{
		"user": map[string]any{
			"email": "a@b.com",
			"tags":  []any{"x", "y"},
		},
	}

	v, ok := Lookup(ctx, "user.email")
	require.True(t, ok)
	assert.Equal(t, "a@b.com", v)

	v, ok = Lookup(ctx, "user.tags.1")
	require.True(t, ok)
	assert.Equal(t, "y", v)

	v, ok = Lookup(ctx, "user.tags.length")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = Lookup(ctx, "user.address.street")
	assert.False(t, ok)

	_, ok = Lookup(ctx, "missing.deeply.nested")
	assert.False(t, ok)
}

func TestLookupStructFields(t *testing.T) {
	type profile struct {
		Name  string
		email string
	}
	ctx := Context{"p": &profile{Name: "Ada", email: "hidden"}}

	v, ok := Lookup(ctx, "p.Name")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)

	_, ok = Lookup(ctx, "p.email")
	assert.False(t, ok)
}

func TestSetPathCreatesIntermediateMaps(t *testing.T) {
	ctx := Context{}
	SetPath(ctx, "user.profile.email", "new@b.com")

	v, ok := Lookup(ctx, "user.profile.email")
	require.True(t, ok)
	assert.Equal(t, "new@b.com", v)

	SetPath(ctx, "this.count", 3)
	assert.Equal(t, 3, ctx["count"])
}

func TestScopeOverlayIsolation(t *testing.T) {
	ctx := Context{"name": "outer", "count": 1}
	root := NewScope(ctx)

	first := root.Overlay(map[string]any{"name": "first", IndexKey: 0})
	second := root.Overlay(map[string]any{"name": "second", IndexKey: 1})

	v, _ := first.Lookup("name")
	assert.Equal(t, "first", v)
	v, _ = second.Lookup("name")
	assert.Equal(t, "second", v)
	v, _ = root.Lookup("name")
	assert.Equal(t, "outer", v)

	// loop locals stay in their own frame
	first.Set("name", "changed")
	v, _ = second.Lookup("name")
	assert.Equal(t, "second", v)
	assert.Equal(t, "outer", ctx["name"])

	// names the overlay does not define reach the instance context
	second.Set("count", 5)
	assert.Equal(t, 5, ctx["count"])

	second.Set("fresh.value", true)
	v, ok := Lookup(ctx, "fresh.value")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestScopeFlattenAndDepth(t *testing.T) {
	root := NewScope(Context{"a": 1, "b": 2})
	inner := root.Overlay(map[string]any{"b": 3}).Overlay(map[string]any{"c": 4})

	env := inner.Flatten()
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, env)
	assert.Equal(t, 2, inner.Depth())
	assert.Equal(t, 0, root.Depth())
}

func TestTruthy(t *testing.T) {
	falsy := []any{nil, false, 0, int64(0), 0.0, "", math.NaN(), []any(nil)}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "%#v should be falsy", v)
	}

	truthy := []any{true, 1, -1, 0.5, "0", "false", []any{}, map[string]any{}}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%#v should be truthy", v)
	}
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "3", Stringify(3.0))
	assert.Equal(t, "2.5", Stringify(2.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, `{"a":1,"b":[true]}`, Stringify(map[string]any{"b": []any{true}, "a": 1}))
	assert.Equal(t, `["x","y"]`, Stringify([]string{"x", "y"}))
}

func TestDeepCopy(t *testing.T) {
	orig := map[string]any{"items": []any{map[string]any{"n": 1}}}
	cp := DeepCopy(orig).(map[string]any)

	cp["items"].([]any)[0].(map[string]any)["n"] = 2
	assert.Equal(t, 1, orig["items"].([]any)[0].(map[string]any)["n"])
}

func TestRefs(t *testing.T) {
	ctx := Context{}
	ctx.Refs()["input"] = "el"
	assert.Equal(t, "el", ctx.Refs()["input"])

	ctx.ResetRefs()
	assert.Empty(t, ctx.Refs())
}
