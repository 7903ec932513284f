package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/fetch"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/scanner"
)

// addPathFlag registers the --path flag of the commands that scan.
func addPathFlag(fs *pflag.FlagSet, dst *[]string) {
	fs.StringSliceVarP(dst, "path", "p", nil, "additional files or directories to scan")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newFetcher routes locations to files or HTTP. Remote documents go through
// the bbolt cache when one is configured; a cache that cannot be opened is
// skipped with a warning.
func newFetcher(ctx context.Context, cfg *config.Config, logger logging.Logger) (fetch.Fetcher, io.Closer) {
	router := fetch.NewRouter("", cfg.Cache.Timeout)
	if cfg.Cache.Path == "" || len(cfg.Components.Remote) == 0 {
		return router, nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o750); err != nil {
		logger.Warn(ctx, err, "fetch cache disabled", "path", cfg.Cache.Path)
		return router, nopCloser{}
	}
	cached, err := fetch.OpenCache(cfg.Cache.Path, router.HTTP, cfg.Cache.TTL, logger)
	if err != nil {
		logger.Warn(ctx, err, "fetch cache disabled", "path", cfg.Cache.Path)
		return router, nopCloser{}
	}
	router.HTTP = cached
	return router, cached
}

// newScanner creates a scanner over reg using the configured extensions.
func newScanner(reg *registry.ComponentRegistry, fetcher fetch.Fetcher, cfg *config.Config, logger logging.Logger, opts ...scanner.Option) *scanner.ComponentScanner {
	opts = append([]scanner.Option{
		scanner.WithFetcher(fetcher),
		scanner.WithLogger(logger),
		scanner.WithExtensions(cfg.Components.Extensions...),
	}, opts...)
	return scanner.NewComponentScanner(reg, opts...)
}

// scanAll loads the configured scan paths, the extra paths and the remote
// locations. Paths naming a file are scanned directly.
func scanAll(ctx context.Context, s *scanner.ComponentScanner, cfg *config.Config, extra []string) *scanner.Result {
	total := &scanner.Result{}
	add := func(r *scanner.Result) {
		total.Locations = append(total.Locations, r.Locations...)
		total.Defined = append(total.Defined, r.Defined...)
		total.Unchanged = append(total.Unchanged, r.Unchanged...)
		total.Errors = append(total.Errors, r.Errors...)
	}

	paths := append(append([]string{}, cfg.Components.ScanPaths...), extra...)
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			add(s.ScanLocations(ctx, []string{path}))
			continue
		}
		res, err := s.ScanDirectory(ctx, path)
		if err != nil {
			total.Errors = append(total.Errors, err)
			continue
		}
		add(res)
	}
	if len(cfg.Components.Remote) > 0 {
		add(s.ScanLocations(ctx, cfg.Components.Remote))
	}
	return total
}

// loadRegistry scans everything into a fresh registry. Scan errors are
// logged and returned in the result; they do not stop the command.
func loadRegistry(ctx context.Context, cfg *config.Config, logger logging.Logger, extra []string) (*registry.ComponentRegistry, *scanner.Result) {
	reg := registry.NewComponentRegistry()
	fetcher, closer := newFetcher(ctx, cfg, logger)
	defer closer.Close()

	res := scanAll(ctx, newScanner(reg, fetcher, cfg, logger), cfg, extra)
	for _, err := range res.Errors {
		logger.Warn(ctx, err, "component scan error")
	}
	return reg, res
}
