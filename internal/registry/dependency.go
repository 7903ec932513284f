package registry

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/tessera/internal/component"
)

// CustomElements returns the custom element names used in markup, sorted
// and without self. Mustache tags are plain text to the tokenizer and are
// ignored.
func CustomElements(markup, self string) []string {
	seen := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, _ := z.TagName()
		tag := string(name)
		if tag != self && component.ValidName(tag) {
			seen[tag] = true
		}
	}

	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// GetDependents returns the registered components whose markup uses name,
// sorted by name.
func (r *ComponentRegistry) GetDependents(name string) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var dependents []string
	for other, entry := range r.components {
		for _, dep := range entry.Dependencies {
			if dep == name {
				dependents = append(dependents, other)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// GetDependencyGraph returns the registered components mapped to the custom
// elements their markup uses. Unregistered tags are kept.
func (r *ComponentRegistry) GetDependencyGraph() map[string][]string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	graph := make(map[string][]string, len(r.components))
	for name, entry := range r.components {
		graph[name] = append([]string(nil), entry.Dependencies...)
	}
	return graph
}

// DetectCircularDependencies returns every component cycle reachable in the
// graph. Each cycle starts and ends with the same name.
func (r *ComponentRegistry) DetectCircularDependencies() [][]string {
	graph := r.GetDependencyGraph()
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range names {
		if !visited[name] {
			if cycle := detectCycleDFS(name, graph, visited, recStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}
	return cycles
}

func detectCycleDFS(name string, graph map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, dep := range graph[name] {
		if _, registered := graph[dep]; !registered {
			continue
		}
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, graph, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i+1)
					copy(cycle, path[i:])
					cycle[len(cycle)-1] = dep
					return cycle
				}
			}
		}
	}

	recStack[name] = false
	return nil
}
