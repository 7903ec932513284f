package errors

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
)

// Severity represents the severity of a collected error
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is one collected error with the time it was seen.
type Entry struct {
	Err       error
	Severity  Severity
	Timestamp time.Time
}

// ErrorCollector collects contained render errors so that nothing is dropped
// silently. It is safe for concurrent use.
type ErrorCollector struct {
	entries []Entry
	limit   int
	mutex   sync.RWMutex
}

// NewErrorCollector creates a collector keeping at most limit entries.
// A limit of zero keeps everything.
func NewErrorCollector(limit int) *ErrorCollector {
	return &ErrorCollector{
		entries: make([]Entry, 0),
		limit:   limit,
	}
}

// AddError records err, classifying contained errors as warnings.
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}

	severity := SeverityError
	if !Propagates(err) {
		severity = SeverityWarning
	}

	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.entries = append(ec.entries, Entry{Err: err, Severity: severity, Timestamp: time.Now()})
	if ec.limit > 0 && len(ec.entries) > ec.limit {
		ec.entries = ec.entries[len(ec.entries)-ec.limit:]
	}
}

// Entries returns a copy of the collected entries
func (ec *ErrorCollector) Entries() []Entry {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]Entry, len(ec.entries))
	copy(result, ec.entries)
	return result
}

// GetAllErrors returns all collected errors in arrival order
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	all := make([]error, 0, len(ec.entries))
	for _, e := range ec.entries {
		all = append(all, e.Err)
	}
	return all
}

// GetErrorsByType returns errors whose outermost classification is t
func (ec *ErrorCollector) GetErrorsByType(t ErrorType) []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	var matched []error
	for _, e := range ec.entries {
		if IsType(e.Err, t) {
			matched = append(matched, e.Err)
		}
	}
	return matched
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.entries) > 0
}

// Len returns the number of collected entries
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.entries)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.entries = ec.entries[:0]
}

// ErrorOverlay generates HTML for the dev server error overlay
func (ec *ErrorCollector) ErrorOverlay() string {
	entries := ec.Entries()
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div id="tessera-error-overlay" style="position:fixed;inset:0;background:rgba(0,0,0,.85);color:#fff;font:14px Menlo,monospace;z-index:9999;padding:20px;overflow:auto">`)
	b.WriteString(`<h2 style="margin:0 0 16px;color:#ff6b6b">Render Errors</h2>`)

	for _, entry := range entries {
		color := "#ff6b6b"
		if entry.Severity == SeverityWarning {
			color = "#feca57"
		}

		location := ""
		var te *TesseraError
		if errors.As(entry.Err, &te) {
			location = te.Component
			if te.Directive != "" {
				location += " " + te.Directive
			}
		}

		fmt.Fprintf(&b,
			`<div style="background:#2d3748;padding:12px;margin-bottom:12px;border-left:4px solid %s"><span style="color:%s;font-weight:bold">%s</span> <span style="color:#a0aec0">%s %s</span><div>%s</div></div>`,
			color, color, entry.Severity, entry.Timestamp.Format("15:04:05"),
			html.EscapeString(location), html.EscapeString(entry.Err.Error()))
	}

	b.WriteString(`</div>`)
	return b.String()
}
