package server

import (
	stderrors "errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/errors"
)

// maxPageSize bounds markup posted to /render.
const maxPageSize = 1 << 20

// ComponentSummary describes a definition in the /components listing.
type ComponentSummary struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	Role            string   `json:"role,omitempty"`
	Observed        []string `json:"observed,omitempty"`
	ObservesContent bool     `json:"observes_content,omitempty"`
	Source          string   `json:"source,omitempty"`
	Dependencies    []string `json:"dependencies,omitempty"`
}

func (s *PreviewServer) summaries() []ComponentSummary {
	defs := s.registry.GetAll()
	out := make([]ComponentSummary, 0, len(defs))
	for _, def := range defs {
		summary := ComponentSummary{
			Name:            def.Name,
			DisplayName:     DisplayName(def.Name),
			Role:            string(def.Role),
			Observed:        def.Observed,
			ObservesContent: def.ObservesContent,
			Source:          def.Source,
		}
		if entry, ok := s.registry.Entry(def.Name); ok {
			summary.Dependencies = entry.Dependencies
		}
		out = append(out, summary)
	}
	return out
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	templ.Handler(indexPage(s.registry.GetAll())).ServeHTTP(w, r)
}

func (s *PreviewServer) handleComponents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.summaries())
}

// queryAttrs turns the query string into host attributes. Repeated keys keep
// the last value.
func queryAttrs(r *http.Request) map[string]string {
	attrs := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 && key != "content" {
			attrs[key] = values[len(values)-1]
		}
	}
	return attrs
}

// handleComponent serves the preview page of one component. Query
// parameters become host attributes; ?content= sets the light content.
func (s *PreviewServer) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, err := s.registry.Lookup(name)
	if err != nil {
		templ.Handler(errorPage("Unknown component", err), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
		return
	}

	attrs := queryAttrs(r)
	page, err := s.renderer.RenderComponent(r.Context(), name, attrs, r.URL.Query().Get("content"))
	if err != nil {
		s.logger.Error(r.Context(), err, "preview render failed", "component", name)
		templ.Handler(errorPage(DisplayName(name), err), templ.WithStatus(http.StatusInternalServerError)).ServeHTTP(w, r)
		return
	}

	shell, err := previewPage(def, attrs, page.HTML, page.Errors.ErrorOverlay())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	templ.Handler(shell).ServeHTTP(w, r)
}

// handleRenderComponent returns the rendered fragment of one component.
func (s *PreviewServer) handleRenderComponent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	page, err := s.renderer.RenderComponent(r.Context(), name, queryAttrs(r), r.URL.Query().Get("content"))
	if err != nil {
		status := http.StatusInternalServerError
		if stderrors.Is(err, errors.ErrComponentNotFound(name)) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeRendered(w, page.HTML, len(page.Failed()))
}

// handleRenderPage renders a posted document or fragment. A body starting
// with a doctype or <html> is rendered as a full page.
func (s *PreviewServer) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPageSize+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) > maxPageSize {
		http.Error(w, "page too large", http.StatusRequestEntityTooLarge)
		return
	}

	page, err := s.renderer.Render(r.Context(), string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	failed := page.Failed()
	names := make([]string, 0, len(failed))
	for _, u := range failed {
		names = append(names, u.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		w.Header().Add("X-Tessera-Failed", n)
	}
	writeRendered(w, page.HTML, len(failed))
}

func writeRendered(w http.ResponseWriter, markup string, failed int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if failed > 0 {
		w.Header().Set("X-Tessera-Errors", strconv.Itoa(failed))
	}
	_, _ = io.WriteString(w, markup)
}

// componentOptions configures instances owned by live sessions. Live hosts
// are plain elements in the preview page, so styles are always scoped.
func (s *PreviewServer) componentOptions() []component.Option {
	return []component.Option{
		component.WithLogger(s.logger),
		component.WithStyle(liveStyle),
		component.WithMaxRenderDepth(s.config.Render.MaxRenderDepth),
	}
}
