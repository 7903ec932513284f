package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/errors"
)

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.html"), []byte("<template></template>"), 0o644))
	f := &FileFetcher{Root: dir}
	ctx := context.Background()

	got, err := f.Fetch(ctx, "card.html")
	require.NoError(t, err)
	assert.Equal(t, "<template></template>", got)

	got, err = f.Fetch(ctx, "file://"+filepath.Join(dir, "card.html"))
	require.NoError(t, err)
	assert.Equal(t, "<template></template>", got)

	_, err = f.Fetch(ctx, "missing.html")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, "../outside.html")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/card.html":
			fmt.Fprint(w, "<p>remote</p>")
		case "/gone.html":
			w.WriteHeader(http.StatusGone)
		case "/broken.html":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	ctx := context.Background()

	got, err := f.Fetch(ctx, srv.URL+"/card.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>remote</p>", got)

	_, err = f.Fetch(ctx, srv.URL+"/missing.html")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Fetch(ctx, srv.URL+"/gone.html")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, srv.URL+"/broken.html")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
}

func TestRouter(t *testing.T) {
	var calls []string
	r := &Router{
		Files: FetcherFunc(func(_ context.Context, loc string) (string, error) {
			calls = append(calls, "file:"+loc)
			return "", nil
		}),
		HTTP: FetcherFunc(func(_ context.Context, loc string) (string, error) {
			calls = append(calls, "http:"+loc)
			return "", nil
		}),
	}
	ctx := context.Background()
	_, _ = r.Fetch(ctx, "a.html")
	_, _ = r.Fetch(ctx, "https://example.com/b.html")

	assert.Equal(t, []string{"file:a.html", "http:https://example.com/b.html"}, calls)
}

func TestCachedFetcher(t *testing.T) {
	calls := 0
	var fail error
	next := FetcherFunc(func(_ context.Context, loc string) (string, error) {
		calls++
		if fail != nil {
			return "", fail
		}
		return fmt.Sprintf("%s#%d", loc, calls), nil
	})

	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"), next, time.Minute, nil)
	require.NoError(t, err)
	defer c.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	got, err := c.Fetch(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", got)

	got, err = c.Fetch(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", got, "served from cache")
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Minute)
	got, err = c.Fetch(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", got, "expired entry refetched")

	now = now.Add(2 * time.Minute)
	fail = fmt.Errorf("network down")
	got, err = c.Fetch(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", got, "stale entry served on failure")

	fail = fmt.Errorf("a: %w", ErrNotFound)
	_, err = c.Fetch(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, c.Len())
}
