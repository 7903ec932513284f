package dom

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
)

// Event is a synthetic DOM event.
type Event struct {
	Type          string
	Target        *Element
	CurrentTarget *Element
	Detail        any

	stopped          bool
	defaultPrevented bool
}

// NewEvent creates an event of the given type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ}
}

// StopPropagation prevents the event from reaching further ancestors.
func (ev *Event) StopPropagation() {
	ev.stopped = true
}

// PreventDefault marks the event as handled.
func (ev *Event) PreventDefault() {
	ev.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (ev *Event) DefaultPrevented() bool {
	return ev.defaultPrevented
}

// Value returns the target's form value, mirroring event.target.value.
func (ev *Event) Value() string {
	if ev.Target == nil {
		return ""
	}
	return ev.Target.Value()
}

// Listener handles an event. A returned error aborts dispatch.
type Listener func(ev *Event) error

// AddEventListener registers fn for events of type typ on the element.
func (e *Element) AddEventListener(typ string, fn Listener) {
	byType := e.root.listeners[e.Node]
	if byType == nil {
		byType = make(map[string][]Listener)
		e.root.listeners[e.Node] = byType
	}
	byType[typ] = append(byType[typ], fn)
}

// Listeners returns the number of listeners of type typ on the element.
func (e *Element) Listeners(typ string) int {
	return len(e.root.listeners[e.Node][typ])
}

// Dispatch delivers ev to the element and then bubbles it through the
// ancestors inside the root. Dispatch stops at the first listener error.
func (e *Element) Dispatch(ev *Event) (err error) {
	if ev.Target == nil {
		ev.Target = e
	}

	// Bubbling path is fixed before any listener runs; listeners commonly
	// trigger a re-render that detaches the whole tree.
	var path []*html.Node
	for n := e.Node; n != nil && n != e.root.node; n = n.Parent {
		path = append(path, n)
	}
	snapshots := make([][]Listener, len(path))
	for i, n := range path {
		ls := e.root.listeners[n][ev.Type]
		snapshots[i] = append([]Listener(nil), ls...)
	}

	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("listener panic: %w", rerr)
				return
			}
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()

	for i, n := range path {
		ev.CurrentTarget = e.root.Wrap(n)
		for _, fn := range snapshots[i] {
			if lerr := fn(ev); lerr != nil {
				return lerr
			}
		}
		if ev.stopped {
			break
		}
	}
	return nil
}

// ErrNoTarget is returned when an event target cannot be resolved.
var ErrNoTarget = errors.New("dom: event target not found")
