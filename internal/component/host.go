package component

import (
	"sort"
	"strings"
	"sync"
)

// MutationKind identifies a host change.
type MutationKind int

const (
	// AttributeChanged reports a set or removed attribute.
	AttributeChanged MutationKind = iota
	// ContentChanged reports new light content.
	ContentChanged
	// HostConnected reports attachment to a live document.
	HostConnected
	// HostDisconnected reports removal from the document.
	HostDisconnected
)

func (k MutationKind) String() string {
	switch k {
	case AttributeChanged:
		return "attribute"
	case ContentChanged:
		return "content"
	case HostConnected:
		return "connected"
	case HostDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Mutation describes one change of a host.
type Mutation struct {
	Kind     MutationKind
	Name     string
	OldValue string
	Value    string
	Removed  bool
}

// Observer receives host mutations. A returned error is reported to the
// code that caused the mutation.
type Observer func(Mutation) error

// Host is the element a component instance is attached to.
type Host interface {
	TagName() string
	Attributes() map[string]string
	Content() string
	Connected() bool
	// Observe registers fn and returns a function removing it.
	Observe(fn Observer) (cancel func())
}

// HostElement is an in-memory Host.
type HostElement struct {
	mu        sync.Mutex
	tag       string
	attrs     map[string]string
	content   string
	connected bool
	observers map[int]Observer
	nextID    int
}

// NewHostElement creates a disconnected host.
func NewHostElement(tag string, attrs map[string]string, content string) *HostElement {
	h := &HostElement{
		tag:       tag,
		attrs:     make(map[string]string, len(attrs)),
		content:   content,
		observers: make(map[int]Observer),
	}
	for k, v := range attrs {
		h.attrs[k] = v
	}
	return h
}

// TagName returns the element name.
func (h *HostElement) TagName() string {
	return h.tag
}

// Attributes returns a copy of the attributes.
func (h *HostElement) Attributes() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.attrs))
	for k, v := range h.attrs {
		out[k] = v
	}
	return out
}

// Attribute returns one attribute value.
func (h *HostElement) Attribute(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.attrs[name]
	return v, ok
}

// Content returns the light content markup.
func (h *HostElement) Content() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content
}

// Connected reports whether the host is attached to a live document.
func (h *HostElement) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Observe registers an observer.
func (h *HostElement) Observe(fn Observer) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.observers[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.observers, id)
	}
}

// SetAttribute sets an attribute, lower-casing its name, and notifies
// observers.
func (h *HostElement) SetAttribute(name, value string) error {
	name = strings.ToLower(name)
	h.mu.Lock()
	old := h.attrs[name]
	h.attrs[name] = value
	h.mu.Unlock()
	return h.notify(Mutation{Kind: AttributeChanged, Name: name, OldValue: old, Value: value})
}

// RemoveAttribute removes an attribute and notifies observers.
func (h *HostElement) RemoveAttribute(name string) error {
	name = strings.ToLower(name)
	h.mu.Lock()
	old, ok := h.attrs[name]
	delete(h.attrs, name)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return h.notify(Mutation{Kind: AttributeChanged, Name: name, OldValue: old, Removed: true})
}

// SetContent replaces the light content and notifies observers.
func (h *HostElement) SetContent(markup string) error {
	h.mu.Lock()
	old := h.content
	h.content = markup
	h.mu.Unlock()
	return h.notify(Mutation{Kind: ContentChanged, OldValue: old, Value: markup})
}

// Connect attaches the host to a live document.
func (h *HostElement) Connect() error {
	h.mu.Lock()
	was := h.connected
	h.connected = true
	h.mu.Unlock()
	if was {
		return nil
	}
	return h.notify(Mutation{Kind: HostConnected})
}

// Disconnect removes the host from its document.
func (h *HostElement) Disconnect() error {
	h.mu.Lock()
	was := h.connected
	h.connected = false
	h.mu.Unlock()
	if !was {
		return nil
	}
	return h.notify(Mutation{Kind: HostDisconnected})
}

// notify delivers m to every observer in registration order and returns the
// first error.
func (h *HostElement) notify(m Mutation) error {
	h.mu.Lock()
	ids := make([]int, 0, len(h.observers))
	for id := range h.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.observers[id])
	}
	h.mu.Unlock()

	var first error
	for _, fn := range fns {
		if err := fn(m); err != nil && first == nil {
			first = err
		}
	}
	return first
}
