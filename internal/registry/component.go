// Package registry holds the process-wide table of component definitions.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/errors"
)

// ComponentRegistry maps custom element names to definitions.
type ComponentRegistry struct {
	components map[string]*Entry
	mutex      sync.RWMutex
	watchers   []chan ComponentEvent
}

// Entry is a registered definition with its registration metadata.
type Entry struct {
	Definition   *component.Definition
	Registered   time.Time
	Dependencies []string
}

// Name returns the element name of the definition.
func (e *Entry) Name() string {
	return e.Definition.Name
}

// ComponentEvent represents a change in the registry.
type ComponentEvent struct {
	Type      EventType
	Name      string
	Entry     *Entry
	Timestamp time.Time
}

// EventType represents the type of registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (t EventType) String() string {
	switch t {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		components: make(map[string]*Entry),
		watchers:   make([]chan ComponentEvent, 0),
	}
}

// Define registers def unless the name is taken. It reports whether def was
// added; defining an existing name is a no-op.
func (r *ComponentRegistry) Define(def *component.Definition) (bool, error) {
	if def == nil || !component.ValidName(def.Name) {
		name := ""
		if def != nil {
			name = def.Name
		}
		return false, errors.ErrInvalidDefinition(name, "not a valid custom element name")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.components[def.Name]; exists {
		return false, nil
	}
	entry := r.entryLocked(def)
	r.components[def.Name] = entry
	r.notifyLocked(EventTypeAdded, entry)
	return true, nil
}

// Replace registers def, overwriting an existing definition of the same
// name. Live instances keep the definition they were built from.
func (r *ComponentRegistry) Replace(def *component.Definition) error {
	if def == nil || !component.ValidName(def.Name) {
		return errors.ErrInvalidDefinition("", "not a valid custom element name")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.components[def.Name]; exists {
		eventType = EventTypeUpdated
	}
	entry := r.entryLocked(def)
	r.components[def.Name] = entry
	r.notifyLocked(eventType, entry)
	return nil
}

func (r *ComponentRegistry) entryLocked(def *component.Definition) *Entry {
	return &Entry{
		Definition:   def,
		Registered:   time.Now(),
		Dependencies: CustomElements(def.Markup, def.Name),
	}
}

// notifyLocked delivers an event without blocking. Full watcher channels
// drop the event.
func (r *ComponentRegistry) notifyLocked(t EventType, entry *Entry) {
	event := ComponentEvent{
		Type:      t,
		Name:      entry.Name(),
		Entry:     entry,
		Timestamp: time.Now(),
	}
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}

// Get retrieves a definition by element name.
func (r *ComponentRegistry) Get(name string) (*component.Definition, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.components[name]
	if !exists {
		return nil, false
	}
	return entry.Definition, true
}

// Lookup retrieves a definition or a component-not-found error.
func (r *ComponentRegistry) Lookup(name string) (*component.Definition, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, errors.ErrComponentNotFound(name)
	}
	return def, nil
}

// Entry returns the registration record of name.
func (r *ComponentRegistry) Entry(name string) (*Entry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.components[name]
	return entry, exists
}

// GetAll returns all registered definitions sorted by name.
func (r *ComponentRegistry) GetAll() []*component.Definition {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*component.Definition, 0, len(r.components))
	for _, entry := range r.components {
		result = append(result, entry.Definition)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns the registered element names in sorted order.
func (r *ComponentRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove removes a definition from the registry.
func (r *ComponentRegistry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.components[name]
	if !exists {
		return
	}
	delete(r.components, name)
	r.notifyLocked(EventTypeRemoved, entry)
}

// Watch returns a channel that receives registry events.
func (r *ComponentRegistry) Watch() <-chan ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *ComponentRegistry) UnWatch(ch <-chan ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered definitions.
func (r *ComponentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}
