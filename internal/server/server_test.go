package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/registry"
)

const testDefinitions = `
<template name="click-counter" observed="label">
  <button class="inc" @click="count++">{{label}}: {{count}}</button>
  <script type="application/yaml">
    state:
      count: 0
      label: Clicks
  </script>
  <style>button { color: teal }</style>
</template>
<template name="name-field" as="form">
  <input x-model="value">
  <script type="application/yaml">
    state:
      value: ""
  </script>
</template>
<template name="user-card" observed="title">
  <h2>{{title}}</h2>
  <click-counter label="Likes"></click-counter>
</template>`

func testRegistry(t *testing.T) *registry.ComponentRegistry {
	t.Helper()
	defs, err := component.ParseDefinitions(testDefinitions, "test.html")
	require.NoError(t, err)
	reg := registry.NewComponentRegistry()
	for _, def := range defs {
		added, err := reg.Define(def)
		require.NoError(t, err)
		require.True(t, added)
	}
	return reg
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Watch = false
	return cfg
}

// startServer runs a preview server over reg behind httptest.
func startServer(t *testing.T, cfg *config.Config, reg *registry.ComponentRegistry) (*PreviewServer, *httptest.Server) {
	t.Helper()
	srv, err := New(cfg, reg, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return srv, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Click Counter", DisplayName("click-counter"))
	assert.Equal(t, "My Fancy Card", DisplayName("my-fancy_card"))
}

func TestNew(t *testing.T) {
	srv, err := New(nil, registry.NewComponentRegistry(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), srv.config)
	assert.Nil(t, srv.watcher, "no watcher without a scanner")
	assert.NotNil(t, srv.renderer)
	assert.Zero(t, srv.ClientCount())
}

func TestHandleIndex(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, `href="/component/click-counter"`)
	assert.Contains(t, body, "Click Counter")
	assert.Contains(t, body, "as form")
	assert.Contains(t, body, "observes label")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestHandleComponents(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	resp, body := get(t, ts.URL+"/components")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summaries []ComponentSummary
	require.NoError(t, json.Unmarshal([]byte(body), &summaries))
	require.Len(t, summaries, 3)
	assert.Equal(t, "click-counter", summaries[0].Name)
	assert.Equal(t, "Click Counter", summaries[0].DisplayName)
	assert.Equal(t, []string{"label"}, summaries[0].Observed)
	assert.Equal(t, "form", summaries[1].Role)
	assert.Equal(t, []string{"click-counter"}, summaries[2].Dependencies)
}

func TestHandleComponentPreview(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	resp, body := get(t, ts.URL+"/component/user-card?title=Ada")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>User Card</h1>")
	assert.Contains(t, body, `<template shadowrootmode="open">`)
	assert.Contains(t, body, "<h2>Ada</h2>")
	assert.Contains(t, body, "Likes: 0")
	assert.Contains(t, body, `id="tessera-live" data-component="user-card"`)
	assert.Contains(t, body, `data-attrs="{&#34;title&#34;:&#34;Ada&#34;}"`)

	resp, body = get(t, ts.URL+"/component/missing-thing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "component not found: missing-thing")
}

func TestHandleRenderComponent(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	resp, body := get(t, ts.URL+"/render/click-counter?label=Taps")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, `<click-counter label="Taps"><template shadowrootmode="open">`), body)
	assert.Contains(t, body, "Taps: 0")
	assert.Empty(t, resp.Header.Get("X-Tessera-Errors"))

	resp, _ = get(t, ts.URL+"/render/missing-thing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRenderComponentScoped(t *testing.T) {
	cfg := testConfig()
	cfg.Render.Style = "scoped"
	_, ts := startServer(t, cfg, testRegistry(t))

	_, body := get(t, ts.URL+"/render/click-counter")
	assert.NotContains(t, body, "shadowrootmode")
	assert.Contains(t, body, "click-counter button")
}

func TestHandleRenderPage(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	tests := []struct {
		name     string
		body     string
		contains []string
		failed   []string
	}{
		{
			name:     "fragment",
			body:     `<p>before</p><click-counter label="Votes"></click-counter>`,
			contains: []string{"<p>before</p>", "Votes: 0"},
		},
		{
			name:     "document",
			body:     `<!DOCTYPE html><html><body><name-field name="who" value="Ada"></name-field></body></html>`,
			contains: []string{"<html>", `<input type="hidden" name="who" value="Ada"/>`},
		},
		{
			name:     "unregistered elements stay as written",
			body:     `<other-thing a="1"></other-thing>`,
			contains: []string{`<other-thing a="1"></other-thing>`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/render", "text/html", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			for _, want := range tt.contains {
				assert.Contains(t, string(body), want)
			}
			assert.Equal(t, tt.failed, resp.Header.Values("X-Tessera-Failed"))
		})
	}
}

func TestHandleRenderPageTooLarge(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	resp, err := http.Post(ts.URL+"/render", "text/html", strings.NewReader(strings.Repeat("a", maxPageSize+1)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestCompression(t *testing.T) {
	tests := []struct {
		name        string
		compression bool
		want        string
	}{
		{name: "enabled", compression: true, want: "gzip"},
		{name: "disabled", compression: false, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Server.Compression = tt.compression
			_, ts := startServer(t, cfg, testRegistry(t))

			req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
			require.NoError(t, err)
			req.Header.Set("Accept-Encoding", "gzip")
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.want, resp.Header.Get("Content-Encoding"))
		})
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"http://app.test"}
	_, ts := startServer(t, cfg, testRegistry(t))

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "http://app.test", want: "http://app.test"},
		{origin: "http://evil.test", want: ""},
		{origin: "", want: ""},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/components", nil)
		require.NoError(t, err)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, tt.want, resp.Header.Get("Access-Control-Allow-Origin"), tt.origin)
	}
}

func TestHandleHealth(t *testing.T) {
	_, ts := startServer(t, testConfig(), testRegistry(t))

	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(3), health["components"])
}

func TestSlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	w := newSlidingWindow(2, time.Second)
	w.now = func() time.Time { return now }

	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.False(t, w.Allow(), "third message in the window")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, w.Allow(), "backoff and window expired")

	assert.True(t, w.Allow())
	assert.False(t, w.Allow())
	now = now.Add(1500 * time.Millisecond)
	assert.False(t, w.Allow(), "second violation backs off for two seconds")
	now = now.Add(time.Second)
	assert.True(t, w.Allow())
}
