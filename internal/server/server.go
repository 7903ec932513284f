// Package server is the development server: a component index, preview
// pages rendered on the server and live sessions that drive a server-side
// instance from browser events over a websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/renderer"
	"github.com/conneroisu/tessera/internal/scanner"
	"github.com/conneroisu/tessera/internal/style"
	"github.com/conneroisu/tessera/internal/watcher"
)

// watchDelay debounces definition file changes.
const watchDelay = 300 * time.Millisecond

// PreviewServer serves components with live sessions and reload on change.
type PreviewServer struct {
	config       *config.Config
	logger       logging.Logger
	failures     *errors.ErrorHandler
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*Client]struct{}
	clientsMutex sync.RWMutex
	broadcast    chan UpdateMessage
	register     chan *Client
	unregister   chan *Client
	hubDone      chan struct{}
	registry     *registry.ComponentRegistry
	scanner      *scanner.ComponentScanner
	renderer     *renderer.ComponentRenderer
	watcher      *watcher.FileWatcher
	baseCtx      context.Context
	shutdownOnce sync.Once
}

// UpdateMessage is a message sent to the browser.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Server message types.
const (
	MessageRender  = "render"
	MessageErrors  = "errors"
	MessageError   = "error"
	MessageReload  = "reload"
	MessageRemoved = "removed"
)

// New creates a preview server over reg. Definitions are loaded by scan; a
// nil scan disables scanning and file watching.
func New(cfg *config.Config, reg *registry.ComponentRegistry, scan *scanner.ComponentScanner, logger logging.Logger) (*PreviewServer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("server")

	s := &PreviewServer{
		config:     cfg,
		logger:     logger,
		failures:   errors.NewErrorHandler(logger),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan UpdateMessage, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		hubDone:    make(chan struct{}),
		registry:   reg,
		scanner:    scan,
		renderer: renderer.NewComponentRenderer(reg, logger, renderer.Options{
			MaxDepth:         cfg.Render.MaxDepth,
			Mode:             style.Mode(cfg.Render.Style),
			ComponentOptions: []component.Option{component.WithMaxRenderDepth(cfg.Render.MaxRenderDepth)},
		}),
		baseCtx: context.Background(),
	}

	if cfg.Server.Watch && scan != nil {
		fw, err := watcher.NewFileWatcher(watchDelay, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		s.watcher = fw
	}
	return s, nil
}

// Handler returns the HTTP handler. Everything except the websocket
// endpoint is compressed when compression is enabled.
func (s *PreviewServer) Handler() http.Handler {
	pages := http.NewServeMux()
	pages.HandleFunc("GET /{$}", s.handleIndex)
	pages.HandleFunc("GET /health", s.handleHealth)
	pages.HandleFunc("GET /components", s.handleComponents)
	pages.HandleFunc("GET /component/{name}", s.handleComponent)
	pages.HandleFunc("GET /render/{name}", s.handleRenderComponent)
	pages.HandleFunc("POST /render", s.handleRenderPage)

	var handler http.Handler = pages
	if s.config.Server.Compression {
		handler = gzhttp.GzipHandler(pages)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("/", handler)
	return s.addMiddleware(mux)
}

// Run scans the configured paths, then runs the websocket hub, the registry
// subscription and the file watcher until ctx is done.
func (s *PreviewServer) Run(ctx context.Context) {
	s.baseCtx = ctx
	s.initialScan(ctx)
	s.setupFileWatcher(ctx)

	events := s.registry.Watch()
	defer s.registry.UnWatch(events)
	go s.runWebSocketHub(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg := UpdateMessage{Type: MessageReload, Target: ev.Name, Timestamp: ev.Timestamp}
			if ev.Type == registry.EventTypeRemoved {
				msg.Type = MessageRemoved
			}
			s.logger.Debug(ctx, "definition changed", "component", ev.Name, "change", ev.Type.String())
			s.broadcastMessage(msg)
		}
	}
}

// Start runs the server until ctx is done or the listener fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	go s.Run(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "preview server listening", "address", "http://"+server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *PreviewServer) initialScan(ctx context.Context) {
	if s.scanner == nil {
		return
	}
	for _, path := range s.config.Components.ScanPaths {
		res, err := s.scanner.ScanDirectory(ctx, path)
		if err != nil {
			s.logger.Warn(ctx, err, "scan failed", "path", path)
			continue
		}
		for _, scanErr := range res.Errors {
			s.logger.Warn(ctx, scanErr, "definition rejected", "path", path)
		}
	}
	if len(s.config.Components.Remote) > 0 {
		res := s.scanner.ScanLocations(ctx, s.config.Components.Remote)
		for _, scanErr := range res.Errors {
			s.logger.Warn(ctx, scanErr, "remote definition rejected")
		}
	}
	s.logger.Info(ctx, "initial scan complete", "components", s.registry.Count())
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) {
	if s.watcher == nil {
		return
	}
	s.watcher.AddFilter(watcher.ExtensionFilter(s.config.Components.Extensions...))
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	s.watcher.AddFilter(watcher.NoBackupFilter)
	s.watcher.AddHandler(s.handleFileChange)

	for _, path := range s.config.Components.ScanPaths {
		if err := s.watcher.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "failed to watch path", "path", path)
		}
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "failed to start file watcher")
	}
}

// handleFileChange rescans changed definition files. Definitions of deleted
// files stay registered; their hash is dropped so a recreated file loads.
func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	var locations []string
	for _, event := range events {
		s.logger.Debug(s.baseCtx, "file changed", "path", event.Path, "change", event.Type.String())
		if event.Type == watcher.EventTypeDeleted || event.Type == watcher.EventTypeRenamed {
			s.scanner.Forget(event.Path)
			continue
		}
		locations = append(locations, event.Path)
	}
	if len(locations) == 0 {
		return nil
	}
	return s.scanner.ScanLocations(s.baseCtx, locations).Err()
}

func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Referrer-Policy", "same-origin")

		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// isAllowedOrigin checks origin against the configured allowed origins.
func (s *PreviewServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn(s.baseCtx, nil, "broadcast queue full, dropping message", "type", msg.Type)
	}
}

// Shutdown closes every session and stops the listener.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down preview server")

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "failed to stop file watcher")
			}
		}

		s.clientsMutex.Lock()
		for client := range s.clients {
			client.close()
		}
		s.clients = make(map[*Client]struct{})
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

// ClientCount returns the number of connected websocket clients.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"components": s.registry.Count(),
		"clients":    s.ClientCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
