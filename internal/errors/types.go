package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeExpression  ErrorType = "expression"
	ErrorTypeDirective   ErrorType = "directive"
	ErrorTypeCompilation ErrorType = "compilation"
	ErrorTypeLifecycle   ErrorType = "lifecycle"
	ErrorTypeEvent       ErrorType = "event"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeInternal    ErrorType = "internal"
)

// TesseraError is a structured error type with rendering context.
type TesseraError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Directive   string
	Expression  string
	Element     string
	Event       string
	Recoverable bool
}

// Error implements the error interface.
func (e *TesseraError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Element != "" {
		parts = append(parts, "element:"+e.Element)
	}

	if e.Event != "" {
		parts = append(parts, "event:"+e.Event)
	}

	if e.Directive != "" {
		parts = append(parts, "directive:"+e.Directive)
	}

	parts = append(parts, e.Message)

	if e.Expression != "" {
		parts = append(parts, fmt.Sprintf("in %q", e.Expression))
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TesseraError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TesseraError) Is(target error) bool {
	var t *TesseraError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TesseraError) WithContext(key string, value interface{}) *TesseraError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *TesseraError) WithComponent(component string) *TesseraError {
	e.Component = component

	return e
}

// WithElement adds the element descriptor.
func (e *TesseraError) WithElement(element string) *TesseraError {
	e.Element = element

	return e
}

// Error creation functions

// NewExpressionError creates an error for a malformed or failing expression.
func NewExpressionError(expression string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeExpression,
		Code:        ErrCodeExpressionFailed,
		Message:     "expression evaluation failed",
		Cause:       cause,
		Expression:  expression,
		Recoverable: true,
	}
}

// NewDirectiveError creates an error for a directive whose effect was skipped.
func NewDirectiveError(directive, expression, message string) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeDirective,
		Code:        ErrCodeDirectiveFailed,
		Message:     message,
		Directive:   directive,
		Expression:  expression,
		Recoverable: true,
	}
}

// NewCompilationError creates an error for markup that cannot be compiled.
func NewCompilationError(component, message string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeCompilation,
		Code:        ErrCodeCompilationFailed,
		Message:     message,
		Cause:       cause,
		Component:   component,
		Recoverable: false,
	}
}

// NewLifecycleError creates an error raised while preparing, rendering or
// mounting an instance.
func NewLifecycleError(component, stage string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeLifecycle,
		Code:        ErrCodeLifecycleFailed,
		Message:     stage + " failed",
		Cause:       cause,
		Component:   component,
		Recoverable: false,
	}
}

// NewEventHandlerError creates an error for a bound handler that failed.
func NewEventHandlerError(event, element, component string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeEvent,
		Code:        ErrCodeHandlerFailed,
		Message:     "event handler failed",
		Cause:       cause,
		Component:   component,
		Element:     element,
		Event:       event,
		Recoverable: false,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error classification

// TypeOf returns the type of the outermost TesseraError in the chain.
func TypeOf(err error) (ErrorType, bool) {
	var te *TesseraError
	if errors.As(err, &te) {
		return te.Type, true
	}

	return "", false
}

// IsType reports whether the outermost TesseraError in the chain has type t.
func IsType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)

	return ok && got == t
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TesseraError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// Propagates reports whether err belongs to a class that is allowed to leave
// a component instance. Expression and directive errors are always contained.
func Propagates(err error) bool {
	t, ok := TypeOf(err)
	if !ok {
		return err != nil
	}

	switch t {
	case ErrorTypeLifecycle, ErrorTypeEvent, ErrorTypeCompilation:
		return true
	case ErrorTypeExpression, ErrorTypeDirective:
		return false
	default:
		return true
	}
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err with msg. Recoverable errors are logged as warnings and
// the rest as errors. The error's context is attached unless fields already
// carry the same key.
func (h *ErrorHandler) Handle(ctx context.Context, err error, msg string, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	given := make(map[string]bool, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			given[key] = true
		}
	}
	errCtx := GetErrorContext(err)
	keys := make([]string, 0, len(errCtx))
	for k := range errCtx {
		if !given[k] && k != "message" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	all := make([]interface{}, 0, len(fields)+2*len(keys))
	all = append(all, fields...)
	for _, k := range keys {
		all = append(all, k, errCtx[k])
	}

	if IsRecoverable(err) {
		h.logger.Warn(ctx, err, msg, all...)
		return
	}
	h.logger.Error(ctx, err, msg, all...)
}

// Common error codes.
const (
	ErrCodeExpressionFailed   = "ERR_EXPRESSION"
	ErrCodeDirectiveFailed    = "ERR_DIRECTIVE"
	ErrCodeCompilationFailed  = "ERR_COMPILATION"
	ErrCodeUnbalancedSection  = "ERR_UNBALANCED_SECTION"
	ErrCodeLifecycleFailed    = "ERR_LIFECYCLE"
	ErrCodeHandlerFailed      = "ERR_EVENT_HANDLER"
	ErrCodeComponentNotFound  = "ERR_COMPONENT_NOT_FOUND"
	ErrCodeInvalidDefinition  = "ERR_INVALID_DEFINITION"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound       = "ERR_FILE_NOT_FOUND"
	ErrCodeFetchFailed        = "ERR_FETCH_FAILED"
	ErrCodeInternalError      = "ERR_INTERNAL"
	ErrCodeValidationFailed   = "ERR_VALIDATION_FAILED"
	ErrCodeRenderDepthReached = "ERR_RENDER_DEPTH"
)

// Helper functions for common errors

// ErrComponentNotFound creates a component not found error.
func ErrComponentNotFound(name string) *TesseraError {
	return NewValidationError(
		ErrCodeComponentNotFound,
		"component not found: "+name,
	)
}

// ErrInvalidDefinition creates an error for a malformed template definition.
func ErrInvalidDefinition(name, reason string) *TesseraError {
	return NewValidationError(
		ErrCodeInvalidDefinition,
		"invalid definition: "+reason,
	).WithComponent(name)
}

// ErrUnbalancedSection creates the compilation error for a section whose
// delimiters do not pair up.
func ErrUnbalancedSection(key string, offset int) *TesseraError {
	e := NewCompilationError("", fmt.Sprintf("unbalanced section %q at offset %d", key, offset), nil)
	e.Code = ErrCodeUnbalancedSection

	return e.WithContext("key", key).WithContext("offset", offset)
}
