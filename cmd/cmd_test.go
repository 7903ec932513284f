package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/config"
)

const greetingDefinitions = `
<template name="hello-card" observed="name">
  <h2>Hello, {{name}}!</h2>
  <script type="application/yaml">
    state:
      name: World
  </script>
  <style>h2 { color: teal }</style>
</template>
<template name="user-list">
  <hello-card name="Ada"></hello-card>
  <other-widget></other-widget>
</template>`

// project writes definitions below a temp dir and a config file scanning
// them. It returns the path of the config file.
func project(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	components := filepath.Join(dir, "components")
	require.NoError(t, os.MkdirAll(components, 0o750))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(components, name), []byte(content), 0o600))
	}

	cfg := fmt.Sprintf("components:\n  scan_paths:\n    - %s\nlogging:\n  level: error\n", components)
	path := filepath.Join(dir, ".tessera.yml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version", "-f", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])

	out, err = execute(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out, err = execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tessera "))

	_, err = execute(t, "", "version", "-f", "xml")
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "", "init", dir, "--example")
	require.NoError(t, err)
	assert.Contains(t, out, ".tessera.yml")
	assert.FileExists(t, filepath.Join(dir, ".tessera.yml"))
	assert.FileExists(t, filepath.Join(dir, "components", "hello-card.html"))

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ".tessera.yml"))
	require.NoError(t, v.ReadInConfig())
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Port, cfg.Server.Port)

	_, err = execute(t, "", "init", dir)
	assert.Error(t, err, "existing config is not overwritten")
}

func TestListCommand(t *testing.T) {
	cfgPath := project(t, map[string]string{"greeting.html": greetingDefinitions})

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "", "list", "--config", cfgPath, "-d")
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "DEPENDENCIES")
		assert.Contains(t, out, "Hello Card")
		assert.Contains(t, out, "hello-card,other-widget")
		assert.Contains(t, out, "Total: 2 components")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "", "list", "--config", cfgPath, "-f", "json")
		require.NoError(t, err)
		var rows []componentRow
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "hello-card", rows[0].Name)
		assert.Equal(t, []string{"name"}, rows[0].Observed)
		assert.Nil(t, rows[1].Dependencies, "dependencies only with -d")
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, "", "list", "--config", cfgPath, "-f", "yaml", "-d")
		require.NoError(t, err)
		var rows []componentRow
		require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "User List", rows[1].DisplayName)
		assert.Equal(t, []string{"hello-card", "other-widget"}, rows[1].Dependencies)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := execute(t, "", "list", "--config", cfgPath, "-f", "csv")
		assert.ErrorContains(t, err, "unsupported format")
	})
}

func TestListCommandEmpty(t *testing.T) {
	cfgPath := project(t, nil)
	out, err := execute(t, "", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No components found.")
}

func TestRenderCommand(t *testing.T) {
	cfgPath := project(t, map[string]string{
		"greeting.html": greetingDefinitions,
		"broken.html":   `<template name="broken-box">{{#items}}<li></template>`,
	})

	tests := []struct {
		name     string
		stdin    string
		args     []string
		contains []string
		excludes []string
	}{
		{
			name:     "fragment from stdin",
			stdin:    `<hello-card name="Ada"></hello-card>`,
			contains: []string{`<hello-card name="Ada"><template shadowrootmode="open">`, "Hello, Ada!"},
		},
		{
			name:     "scoped style",
			stdin:    `<hello-card></hello-card>`,
			args:     []string{"--style", "scoped"},
			contains: []string{"Hello, World!", "hello-card h2"},
			excludes: []string{"shadowrootmode"},
		},
		{
			name:     "document",
			stdin:    `<!DOCTYPE html><html><body><user-list></user-list></body></html>`,
			contains: []string{"<html>", "Hello, Ada!", "<other-widget></other-widget>"},
		},
		{
			name:     "single component",
			args:     []string{"-c", "hello-card", "-a", "name=Bo"},
			contains: []string{"Hello, Bo!"},
		},
		{
			name:     "failures are isolated",
			stdin:    `<broken-box></broken-box><hello-card></hello-card>`,
			contains: []string{"data-tessera-error", "Hello, World!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"render", "--config", cfgPath}, tt.args...)
			out, err := execute(t, tt.stdin, args...)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
		})
	}
}

func TestRenderCommandFromFile(t *testing.T) {
	cfgPath := project(t, map[string]string{"greeting.html": greetingDefinitions})
	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<p>hi</p><hello-card name="Cy"></hello-card>`), 0o600))

	out, err := execute(t, "", "render", "--config", cfgPath, page)
	require.NoError(t, err)
	assert.Contains(t, out, "<p>hi</p>")
	assert.Contains(t, out, "Hello, Cy!")

	_, err = execute(t, "", "render", "--config", cfgPath, filepath.Join(t.TempDir(), "missing.html"))
	assert.ErrorContains(t, err, "failed to read input")
}

func TestRenderCommandStrict(t *testing.T) {
	cfgPath := project(t, map[string]string{"broken.html": `<template name="broken-box">{{#items}}<li></template>`})

	_, err := execute(t, `<broken-box></broken-box>`, "render", "--config", cfgPath, "--strict")
	assert.ErrorContains(t, err, "1 component(s) failed to render: [broken-box]")

	_, err = execute(t, "", "render", "--config", cfgPath, "-c", "missing-thing")
	assert.ErrorContains(t, err, "missing-thing")
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfgPath := project(t, map[string]string{"greeting.html": greetingDefinitions})
		out, err := execute(t, "", "validate", "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "2 component(s)")
		assert.Contains(t, out, "user-list: uses <other-widget>, which is not registered")
		assert.Contains(t, out, "All components are valid")
	})

	t.Run("circular", func(t *testing.T) {
		cfgPath := project(t, map[string]string{"cycle.html": `
<template name="ping-box"><pong-box></pong-box></template>
<template name="pong-box"><ping-box></ping-box></template>`})
		out, err := execute(t, "", "validate", "--config", cfgPath, "-f", "json")
		require.Error(t, err)

		var report ValidationReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.False(t, report.Valid)
		assert.NotEmpty(t, report.CircularCycles)
	})

	t.Run("invalid definition", func(t *testing.T) {
		cfgPath := project(t, map[string]string{"bad.html": `<template name="nohyphen"><p>x</p></template>`})
		out, err := execute(t, "", "validate", "--config", cfgPath)
		require.Error(t, err)
		assert.Contains(t, out, "nohyphen")
	})
}

func TestConfigLoading(t *testing.T) {
	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := execute(t, "", "list", "--config", filepath.Join(t.TempDir(), "nope.yml"))
		assert.ErrorContains(t, err, "failed to read configuration")
	})

	t.Run("environment file and overrides", func(t *testing.T) {
		cfgPath := project(t, nil)
		t.Setenv(configFileEnv, cfgPath)
		t.Setenv("TESSERA_RENDER_STYLE", "scoped")

		a := &app{v: viper.New()}
		config.SetDefaults(a.v)
		a.initConfig()
		cfg, err := a.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, cfgPath, a.v.ConfigFileUsed())
		assert.Equal(t, "scoped", cfg.Render.Style)
		assert.Equal(t, "error", cfg.Logging.Level)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		cfgPath := project(t, nil)
		t.Setenv("TESSERA_LOGGING_LEVEL", "loud")
		_, err := execute(t, "", "list", "--config", cfgPath)
		assert.Error(t, err)
	})
}
