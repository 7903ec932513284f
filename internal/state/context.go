// Package state holds the mutable data a component renders against.
//
// A Context is the single map owned by a component instance. Scopes are
// frames layered on top of it: the root frame is the Context itself and every
// loop iteration or section expansion pushes an overlay frame that shadows
// outer names without copying or mutating them. Reads walk the chain from the
// innermost frame outwards; writes land in the innermost frame that already
// defines the path head, or in the Context when no frame does.
package state

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Reserved context keys.
const (
	// ContentKey holds the host's light-content markup.
	ContentKey = "_content"
	// RefsKey holds the references table populated by x-ref.
	RefsKey = "_refs"
	// IndexKey holds the current loop index inside an x-for expansion.
	IndexKey = "_idx"
	// CurrentKey is the mustache current-item shorthand.
	CurrentKey = "."
)

// Context is the live state of one component instance.
type Context map[string]any

// Merge copies every field of fields into c.
func (c Context) Merge(fields map[string]any) {
	for k, v := range fields {
		c[k] = v
	}
}

// Refs returns the references table, creating it when missing.
func (c Context) Refs() map[string]any {
	if refs, ok := c[RefsKey].(map[string]any); ok {
		return refs
	}
	refs := make(map[string]any)
	c[RefsKey] = refs
	return refs
}

// ResetRefs replaces the references table with an empty one.
func (c Context) ResetRefs() {
	c[RefsKey] = make(map[string]any)
}

// Keys returns the field names in sorted order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SplitPath splits a dotted path, trimming whitespace around segments.
// "this." prefixes are dropped because the context is the receiver.
func SplitPath(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "this.")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Get resolves one path segment on v. Mappings are indexed by key, sequences
// by integer index, structs by exported field name. A missing segment returns
// false instead of failing.
func Get(v any, key string) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case Context:
		val, ok := t[key]
		return val, ok
	case map[string]any:
		val, ok := t[key]
		return val, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			if key == "length" {
				return len(t), true
			}
			return nil, false
		}
		return t[i], true
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		if key == "length" {
			return rv.Len(), true
		}
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Struct:
		f := rv.FieldByName(key)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	case reflect.String:
		if key == "length" {
			return rv.Len(), true
		}
	}

	return nil, false
}

// Lookup resolves a dotted path starting at v, short-circuiting on the first
// missing segment.
func Lookup(v any, path string) (any, bool) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return v, true
	}
	cur := v
	for _, part := range parts {
		next, ok := Get(cur, part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// SetPath writes value at the dotted path below m, creating intermediate
// mappings as needed. Existing non-mapping intermediates are replaced.
func SetPath(m map[string]any, path string, value any) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return
	}
	cur := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Context:
		return t, true
	}
	return nil, false
}
