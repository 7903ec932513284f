package mustache

import (
	"testing"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, src string, ctx state.Context) string {
	t.Helper()
	out, err := Render(src, state.NewScope(ctx))
	require.NoError(t, err)
	return out
}

func TestInterpolation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ctx  state.Context
		want string
	}{
		{
			name: "escaped",
			src:  "Hello, {{name}}!",
			ctx:  state.Context{"name": "<b>x</b>"},
			want: "Hello, &lt;b&gt;x&lt;/b&gt;!",
		},
		{
			name: "raw triple",
			src:  "Hello, {{{name}}}!",
			ctx:  state.Context{"name": "<b>x</b>"},
			want: "Hello, <b>x</b>!",
		},
		{
			name: "raw ampersand",
			src:  "{{& name}}",
			ctx:  state.Context{"name": "<i>"},
			want: "<i>",
		},
		{
			name: "quotes escaped",
			src:  `<a title="{{t}}">`,
			ctx:  state.Context{"t": `"it's"`},
			want: `<a title="&#34;it&#39;s&#34;">`,
		},
		{
			name: "dotted path",
			src:  "{{ user.profile.name }}",
			ctx:  state.Context{"user": map[string]any{"profile": map[string]any{"name": "Ada"}}},
			want: "Ada",
		},
		{
			name: "missing is empty",
			src:  "[{{nope}}][{{user.nope.deeper}}]",
			ctx:  state.Context{"user": map[string]any{}},
			want: "[][]",
		},
		{
			name: "object as json",
			src:  "{{{obj}}}",
			ctx:  state.Context{"obj": map[string]any{"a": 1}},
			want: `{"a":1}`,
		},
		{
			name: "numbers",
			src:  "{{i}} {{f}}",
			ctx:  state.Context{"i": 3, "f": 1.5},
			want: "3 1.5",
		},
		{
			name: "comment dropped",
			src:  "a{{! ignore me }}b",
			want: "ab",
		},
		{
			name: "unclosed tag is text",
			src:  "a {{ b",
			want: "a {{ b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.ctx))
		})
	}
}

func TestSections(t *testing.T) {
	ctx := state.Context{
		"users": []any{
			map[string]any{"name": "Alice"},
			map[string]any{"name": "Bob"},
		},
		"tags":    []string{"x", "y"},
		"empty":   []any{},
		"flag":    true,
		"off":     false,
		"profile": map[string]any{"city": "Oslo"},
		"name":    "outer",
	}

	assert.Equal(t, "Alice Bob ", render(t, "{{#users}}{{name}} {{/users}}", ctx))
	assert.Equal(t, "<x><y>", render(t, "{{#tags}}<{{.}}>{{/tags}}", ctx))
	assert.Equal(t, "", render(t, "{{#empty}}never{{/empty}}", ctx))
	assert.Equal(t, "", render(t, "{{#off}}never{{/off}}", ctx))
	assert.Equal(t, "", render(t, "{{#missing}}never{{/missing}}", ctx))
	assert.Equal(t, "yes true", render(t, "{{#flag}}yes {{.}}{{/flag}}", ctx))
	assert.Equal(t, "Oslo outer", render(t, "{{#profile}}{{city}} {{name}}{{/profile}}", ctx))
}

func TestInvertedSections(t *testing.T) {
	ctx := state.Context{"empty": []any{}, "off": false, "zero": 0, "list": []any{1}}

	assert.Equal(t, "none", render(t, "{{^empty}}none{{/empty}}", ctx))
	assert.Equal(t, "none", render(t, "{{^off}}none{{/off}}", ctx))
	assert.Equal(t, "none", render(t, "{{^zero}}none{{/zero}}", ctx))
	assert.Equal(t, "none", render(t, "{{^missing}}none{{/missing}}", ctx))
	assert.Equal(t, "", render(t, "{{^list}}none{{/list}}", ctx))
}

func TestNestedSections(t *testing.T) {
	ctx := state.Context{
		"groups": []any{
			map[string]any{"title": "A", "items": []any{"1", "2"}},
			map[string]any{"title": "B", "items": []any{}},
		},
	}
	src := "{{#groups}}{{title}}:{{#items}}{{.}},{{/items}}{{^items}}-{{/items}};{{/groups}}"
	assert.Equal(t, "A:1,2,;B:-;", render(t, src, ctx))
}

func TestRenderedDataIsNotRescanned(t *testing.T) {
	ctx := state.Context{
		"name":   "{{secret}}",
		"raw":    "{{#x}}boom{{/x}}",
		"secret": "leaked",
		"x":      true,
	}
	assert.Equal(t, "{{secret}} {{#x}}boom{{/x}}", render(t, "{{name}} {{{raw}}}", ctx))
}

func TestUnbalancedSections(t *testing.T) {
	for _, src := range []string{
		"{{#a}}open",
		"close{{/a}}",
		"{{#a}}{{#b}}{{/a}}{{/b}}",
	} {
		_, err := Render(src, nil)
		require.Error(t, err, src)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCompilation), src)
		assert.True(t, errors.Propagates(err))
	}
}

func TestParseCaches(t *testing.T) {
	a, err := Parse("{{cached}}")
	require.NoError(t, err)
	b, err := Parse("{{cached}}")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "{{cached}}", a.Source())
}

func TestRenderIsIdempotent(t *testing.T) {
	tmpl, err := Parse("{{#items}}<li>{{name}}</li>{{/items}}")
	require.NoError(t, err)
	ctx := state.Context{"items": []any{map[string]any{"name": "<a>"}}}

	first := tmpl.Render(state.NewScope(ctx))
	second := tmpl.Render(state.NewScope(ctx))
	assert.Equal(t, first, second)
}
