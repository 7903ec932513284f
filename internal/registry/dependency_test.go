package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomElements(t *testing.T) {
	markup := `<div><user-card>{{name}}</user-card><user-avatar/><span>x</span>
<template x-for="i of items"><user-card></user-card></template><self-ref></self-ref></div>`

	assert.Equal(t, []string{"user-avatar", "user-card"}, CustomElements(markup, "self-ref"))
	assert.Empty(t, CustomElements("<p>{{#items}}<b>{{.}}</b>{{/items}}</p>", "x-y"))
}

func TestDependents(t *testing.T) {
	registry := NewComponentRegistry()
	for _, d := range []struct{ name, markup string }{
		{"user-list", "<ul><user-row></user-row></ul>"},
		{"user-row", "<li><user-avatar></user-avatar></li>"},
		{"user-avatar", "<img>"},
		{"team-page", "<user-list></user-list><user-avatar></user-avatar>"},
	} {
		_, err := registry.Define(def(d.name, d.markup))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"team-page", "user-row"}, registry.GetDependents("user-avatar"))
	assert.Empty(t, registry.GetDependents("team-page"))

	graph := registry.GetDependencyGraph()
	assert.Equal(t, []string{"user-avatar", "user-list"}, graph["team-page"])
	assert.Empty(t, registry.DetectCircularDependencies())
}

func TestDetectCircularDependencies(t *testing.T) {
	registry := NewComponentRegistry()
	_, err := registry.Define(def("ping-box", "<pong-box></pong-box>"))
	require.NoError(t, err)
	_, err = registry.Define(def("pong-box", "<ping-box></ping-box><other-box></other-box>"))
	require.NoError(t, err)

	cycles := registry.DetectCircularDependencies()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"ping-box", "pong-box", "ping-box"}, cycles[0])
}
