package state

import "strings"

// Scope is one frame of the lookup chain. The root frame wraps the instance
// Context; overlay frames carry loop and section locals.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope returns the root frame for ctx.
func NewScope(ctx Context) *Scope {
	if ctx == nil {
		ctx = make(Context)
	}
	return &Scope{vars: ctx}
}

// Overlay returns a child frame exposing vars on top of s. The caller's map
// is copied so later writes through either side stay isolated.
func (s *Scope) Overlay(vars map[string]any) *Scope {
	frame := make(map[string]any, len(vars))
	for k, v := range vars {
		frame[k] = v
	}
	return &Scope{vars: frame, parent: s}
}

// Root returns the instance Context at the bottom of the chain.
func (s *Scope) Root() Context {
	for s.parent != nil {
		s = s.parent
	}
	return Context(s.vars)
}

// Depth returns the number of overlay frames above the root.
func (s *Scope) Depth() int {
	d := 0
	for f := s; f.parent != nil; f = f.parent {
		d++
	}
	return d
}

// Resolve returns the value bound to a plain name, innermost frame first.
func (s *Scope) Resolve(name string) (any, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Lookup resolves a dotted path against the chain. The head segment is
// resolved through Resolve; the rest walks into the value.
func (s *Scope) Lookup(path string) (any, bool) {
	if strings.TrimSpace(path) == CurrentKey {
		return s.Resolve(CurrentKey)
	}
	parts := SplitPath(path)
	if len(parts) == 0 {
		return nil, false
	}
	cur, ok := s.Resolve(parts[0])
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		cur, ok = Get(cur, part)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at a dotted path. The frame defining the head segment
// receives the write; names unknown to every frame go to the root Context.
func (s *Scope) Set(path string, value any) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return
	}
	target := s.owner(parts[0])
	if len(parts) == 1 {
		target[parts[0]] = value
		return
	}
	SetPath(target, strings.Join(parts, "."), value)
}

func (s *Scope) owner(name string) map[string]any {
	for f := s; f != nil; f = f.parent {
		if _, ok := f.vars[name]; ok {
			return f.vars
		}
	}
	return s.Root()
}

// Flatten merges the chain into a single map, outer frames first, so the
// result can serve as an expression environment. The root Context is copied
// shallowly; nested values are shared.
func (s *Scope) Flatten() map[string]any {
	var frames []*Scope
	size := 0
	for f := s; f != nil; f = f.parent {
		frames = append(frames, f)
		size += len(f.vars)
	}
	env := make(map[string]any, size)
	for i := len(frames) - 1; i >= 0; i-- {
		for k, v := range frames[i].vars {
			env[k] = v
		}
	}
	return env
}
