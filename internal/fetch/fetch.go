// Package fetch loads definition documents by location: local paths,
// http(s) URLs, and a bbolt-backed cache in front of either.
package fetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/tessera/internal/errors"
)

// ErrNotFound is returned when a location holds no document.
var ErrNotFound = stderrors.New("fetch: not found")

// maxDocumentSize bounds a fetched document.
const maxDocumentSize = 4 << 20

// Fetcher returns the text at a location or ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, location string) (string, error) {
	return f(ctx, location)
}

// FileFetcher reads documents below Root. Locations escaping Root are not
// found.
type FileFetcher struct {
	Root string
}

// Fetch reads a file.
func (f *FileFetcher) Fetch(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := f.resolve(location)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", location, ErrNotFound)
		}
		return "", errors.NewIOError(errors.ErrCodeFetchFailed, "read "+location, err)
	}
	return string(data), nil
}

func (f *FileFetcher) resolve(location string) (string, error) {
	location = strings.TrimPrefix(location, "file://")
	if f.Root == "" {
		return filepath.Clean(location), nil
	}
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFetchFailed, "resolve root", err)
	}
	path := location
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", location, ErrNotFound)
	}
	return path, nil
}

// HTTPFetcher performs GET requests.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher with a request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch downloads location. 404 and 410 map to ErrNotFound; other non-2xx
// statuses are I/O errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (string, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFetchFailed, "build request for "+location, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFetchFailed, "get "+location, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", fmt.Errorf("%s: %w", location, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", errors.NewIOError(errors.ErrCodeFetchFailed,
			fmt.Sprintf("get %s: status %d", location, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFetchFailed, "read "+location, err)
	}
	if len(data) > maxDocumentSize {
		return "", errors.NewIOError(errors.ErrCodeFetchFailed, location+": document too large", nil)
	}
	return string(data), nil
}

// Router picks the HTTP fetcher for http(s) locations and the file fetcher
// for everything else.
type Router struct {
	Files Fetcher
	HTTP  Fetcher
}

// NewRouter returns a Router reading files below root.
func NewRouter(root string, timeout time.Duration) *Router {
	return &Router{
		Files: &FileFetcher{Root: root},
		HTTP:  NewHTTPFetcher(timeout),
	}
}

// Fetch dispatches on the location scheme.
func (r *Router) Fetch(ctx context.Context, location string) (string, error) {
	if IsRemote(location) {
		return r.HTTP.Fetch(ctx, location)
	}
	return r.Files.Fetch(ctx, location)
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
