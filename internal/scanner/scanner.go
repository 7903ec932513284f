// Package scanner discovers component definition documents and registers
// every <template name> they declare.
//
// Local directories are walked for files with the configured extensions and
// scanned by a pool of workers; remote documents come through a fetcher.
// Documents whose content hash has not changed since the last scan are
// skipped.
package scanner

import (
	"context"
	"fmt"
	"hash/crc32"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/fetch"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
)

// DefaultExtensions are the file extensions holding definitions.
var DefaultExtensions = []string{".html", ".tmpl"}

// ComponentScanner loads definition documents into a registry.
type ComponentScanner struct {
	registry   *registry.ComponentRegistry
	fetcher    fetch.Fetcher
	logger     logging.Logger
	extensions []string
	workers    int
	replace    bool

	mu     sync.Mutex
	hashes map[string]string
}

// Option configures a ComponentScanner.
type Option func(*ComponentScanner)

// WithFetcher sets the fetcher used for every location.
func WithFetcher(f fetch.Fetcher) Option {
	return func(s *ComponentScanner) { s.fetcher = f }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *ComponentScanner) { s.logger = l }
}

// WithExtensions sets the extensions collected from directories.
func WithExtensions(exts ...string) Option {
	return func(s *ComponentScanner) {
		if len(exts) > 0 {
			s.extensions = exts
		}
	}
}

// WithWorkers sets the number of concurrent scan workers.
func WithWorkers(n int) Option {
	return func(s *ComponentScanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithReplace makes rescans overwrite existing definitions instead of
// keeping the first one.
func WithReplace(replace bool) Option {
	return func(s *ComponentScanner) { s.replace = replace }
}

// Result summarizes a scan.
type Result struct {
	Locations []string
	Defined   []string
	Unchanged []string
	Errors    []error
}

// Err combines the scan errors.
func (r *Result) Err() error {
	return errors.CombineErrors(r.Errors...)
}

func (r *Result) merge(other *Result) {
	r.Locations = append(r.Locations, other.Locations...)
	r.Defined = append(r.Defined, other.Defined...)
	r.Unchanged = append(r.Unchanged, other.Unchanged...)
	r.Errors = append(r.Errors, other.Errors...)
}

func (r *Result) sort() {
	sort.Strings(r.Locations)
	sort.Strings(r.Defined)
	sort.Strings(r.Unchanged)
}

// NewComponentScanner creates a scanner feeding reg.
func NewComponentScanner(reg *registry.ComponentRegistry, opts ...Option) *ComponentScanner {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	s := &ComponentScanner{
		registry:   reg,
		fetcher:    &fetch.FileFetcher{},
		logger:     logging.NewNop(),
		extensions: DefaultExtensions,
		workers:    workers,
		hashes:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRegistry returns the registry the scanner feeds.
func (s *ComponentScanner) GetRegistry() *registry.ComponentRegistry {
	return s.registry
}

// Matches reports whether path has one of the scanned extensions.
func (s *ComponentScanner) Matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ScanDirectory scans every matching file below dir.
func (s *ComponentScanner) ScanDirectory(ctx context.Context, dir string) (*Result, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Matches(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "walk "+dir, err)
	}
	return s.ScanLocations(ctx, files), nil
}

// ScanLocations scans files and URLs with the worker pool.
func (s *ComponentScanner) ScanLocations(ctx context.Context, locations []string) *Result {
	total := &Result{}
	if len(locations) == 0 {
		return total
	}

	op := logging.StartOperation(s.logger, "scan")
	jobs := make(chan string)
	results := make(chan *Result, len(locations))
	workers := s.workers
	if workers > len(locations) {
		workers = len(locations)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for loc := range jobs {
				results <- s.ScanLocation(ctx, loc)
			}
		}()
	}

submit:
	for _, loc := range locations {
		select {
		case jobs <- loc:
		case <-ctx.Done():
			total.Errors = append(total.Errors, ctx.Err())
			break submit
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		total.merge(r)
	}
	total.sort()
	s.logger.Info(ctx, "scan complete",
		"locations", len(total.Locations),
		"defined", len(total.Defined),
		"unchanged", len(total.Unchanged),
		"errors", len(total.Errors))
	op.End(ctx, "workers", workers)
	return total
}

// ScanLocation fetches one document and registers its definitions.
func (s *ComponentScanner) ScanLocation(ctx context.Context, location string) *Result {
	res := &Result{Locations: []string{location}}

	content, err := s.fetcher.Fetch(ctx, location)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("scanning %s: %w", location, err))
		return res
	}

	hash := fmt.Sprintf("%x", crc32.ChecksumIEEE([]byte(content)))
	s.mu.Lock()
	unchanged := s.hashes[location] == hash
	s.mu.Unlock()
	if unchanged {
		res.Unchanged = append(res.Unchanged, location)
		return res
	}

	defs, err := component.ParseDefinitions(content, location)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("scanning %s: %w", location, err))
	}
	for _, def := range defs {
		if s.replace {
			err = s.registry.Replace(def)
		} else {
			var added bool
			added, err = s.registry.Define(def)
			if err == nil && !added {
				s.logger.Debug(ctx, "definition already registered", "component", def.Name, "location", location)
				continue
			}
		}
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Defined = append(res.Defined, def.Name)
	}

	if len(res.Errors) == 0 {
		s.mu.Lock()
		s.hashes[location] = hash
		s.mu.Unlock()
	}
	return res
}

// Forget drops the stored hash of location so the next scan reloads it.
func (s *ComponentScanner) Forget(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, location)
}
