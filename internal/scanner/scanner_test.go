package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/fetch"
	"github.com/conneroisu/tessera/internal/registry"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cards.html", `<template name="user-card"><p>{{name}}</p></template>
<template name="user-badge"><b>{{name}}</b></template>`)
	writeFile(t, dir, "nested/list.tmpl", `<template name="user-list"><ul></ul></template>`)
	writeFile(t, dir, "notes.txt", `<template name="not-scanned"></template>`)
	writeFile(t, dir, ".hidden/skip.html", `<template name="hidden-card"></template>`)

	reg := registry.NewComponentRegistry()
	s := NewComponentScanner(reg, WithWorkers(2))

	res, err := s.ScanDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Len(t, res.Locations, 2)
	assert.Equal(t, []string{"user-badge", "user-card", "user-list"}, res.Defined)
	assert.Equal(t, []string{"user-badge", "user-card", "user-list"}, reg.Names())
}

func TestRescanSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "card.html", `<template name="user-card"><p>a</p></template>`)

	reg := registry.NewComponentRegistry()
	s := NewComponentScanner(reg, WithReplace(true))
	ctx := context.Background()

	res := s.ScanLocation(ctx, path)
	assert.Equal(t, []string{"user-card"}, res.Defined)

	res = s.ScanLocation(ctx, path)
	assert.Equal(t, []string{path}, res.Unchanged)
	assert.Empty(t, res.Defined)

	writeFile(t, dir, "card.html", `<template name="user-card"><p>b</p></template>`)
	res = s.ScanLocation(ctx, path)
	assert.Equal(t, []string{"user-card"}, res.Defined)
	def, _ := reg.Get("user-card")
	assert.Equal(t, "<p>b</p>", def.Markup)

	s.Forget(path)
	res = s.ScanLocation(ctx, path)
	assert.Equal(t, []string{"user-card"}, res.Defined)
}

func TestDefineIfAbsentKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.html", `<template name="user-card"><p>first</p></template>`)
	b := writeFile(t, dir, "b.html", `<template name="user-card"><p>second</p></template>`)

	reg := registry.NewComponentRegistry()
	s := NewComponentScanner(reg)
	ctx := context.Background()

	s.ScanLocation(ctx, a)
	res := s.ScanLocation(ctx, b)
	assert.Empty(t, res.Defined)
	assert.Empty(t, res.Errors)

	def, _ := reg.Get("user-card")
	assert.Equal(t, "<p>first</p>", def.Markup)
}

func TestScanErrorsAreCollected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.html", `<template name="good-card"><p></p></template>`)
	writeFile(t, dir, "bad.html", `<template name="bad"><p></p></template><template name="ok-card"></template>`)

	reg := registry.NewComponentRegistry()
	s := NewComponentScanner(reg)

	res, err := s.ScanDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.Error(t, res.Err())
	assert.Equal(t, []string{"good-card", "ok-card"}, reg.Names())

	_, err = s.ScanDirectory(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestScanRemoteLocations(t *testing.T) {
	docs := map[string]string{
		"https://cdn.example.com/a.html": `<template name="remote-card"><p></p></template>`,
	}
	f := fetch.FetcherFunc(func(_ context.Context, loc string) (string, error) {
		doc, ok := docs[loc]
		if !ok {
			return "", fetch.ErrNotFound
		}
		return doc, nil
	})

	reg := registry.NewComponentRegistry()
	s := NewComponentScanner(reg, WithFetcher(f))

	res := s.ScanLocations(context.Background(), []string{
		"https://cdn.example.com/a.html",
		"https://cdn.example.com/missing.html",
	})
	assert.Equal(t, []string{"remote-card"}, res.Defined)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], fetch.ErrNotFound)
}

func TestMatches(t *testing.T) {
	s := NewComponentScanner(registry.NewComponentRegistry(), WithExtensions(".htm"))
	assert.True(t, s.Matches("a/b.HTM"))
	assert.False(t, s.Matches("a/b.html"))
}
