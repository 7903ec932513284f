package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a TesseraError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *TesseraError {
	if err == nil {
		return nil
	}

	// Keep the rendering context of an inner TesseraError
	var te *TesseraError
	if errors.As(err, &te) {
		return &TesseraError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       te,
			Context:     te.Context,
			Component:   te.Component,
			Directive:   te.Directive,
			Expression:  te.Expression,
			Element:     te.Element,
			Event:       te.Event,
			Recoverable: te.Recoverable,
		}
	}

	return &TesseraError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeExpression || errType == ErrorTypeDirective,
	}
}

// WrapCompilation wraps an error as a compilation error for a component.
func WrapCompilation(err error, component string) *TesseraError {
	if err == nil {
		return nil
	}

	var te *TesseraError
	if errors.As(err, &te) && te.Type == ErrorTypeCompilation {
		te.Component = component
		return te
	}

	return NewCompilationError(component, "render failed", err)
}

// WrapLifecycle wraps an error as a lifecycle error unless it already
// carries a propagating classification.
func WrapLifecycle(err error, component, stage string) *TesseraError {
	if err == nil {
		return nil
	}

	var te *TesseraError
	if errors.As(err, &te) && (te.Type == ErrorTypeLifecycle || te.Type == ErrorTypeEvent) {
		if te.Component == "" {
			te.Component = component
		}
		return te
	}

	return NewLifecycleError(component, stage, err)
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *TesseraError {
	templErr := Wrap(err, ErrorTypeIO, code, message)
	if templErr != nil {
		templErr.Recoverable = false
	}
	return templErr
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *TesseraError {
	templErr := Wrap(err, ErrorTypeConfig, code, message)
	if templErr != nil {
		templErr.Recoverable = false
	}
	return templErr
}

// FromPanic converts a recovered panic value into an error.
func FromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return NewInternalError(ErrCodeInternalError, "panic", err)
	}
	return NewInternalError(ErrCodeInternalError, fmt.Sprintf("panic: %v", r), nil)
}

// GetErrorContext extracts context information from a TesseraError
func GetErrorContext(err error) map[string]interface{} {
	var te *TesseraError
	if errors.As(err, &te) {
		context := make(map[string]interface{})
		for k, v := range te.Context {
			context[k] = v
		}
		if te.Component != "" {
			context["component"] = te.Component
		}
		if te.Directive != "" {
			context["directive"] = te.Directive
		}
		if te.Expression != "" {
			context["expression"] = te.Expression
		}
		if te.Element != "" {
			context["element"] = te.Element
		}
		if te.Event != "" {
			context["event"] = te.Event
		}
		context["type"] = string(te.Type)
		context["code"] = te.Code
		context["recoverable"] = te.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// CombineErrors combines multiple errors into a single error with context
func CombineErrors(errs ...error) error {
	var nonNilErrs []error
	for _, err := range errs {
		if err != nil {
			nonNilErrs = append(nonNilErrs, err)
		}
	}
	if len(nonNilErrs) == 0 {
		return nil
	}
	if len(nonNilErrs) == 1 {
		return nonNilErrs[0]
	}

	messages := make([]string, 0, len(nonNilErrs))
	for _, err := range nonNilErrs {
		messages = append(messages, err.Error())
	}

	return &TesseraError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors", len(nonNilErrs)),
		Cause:   errors.Join(nonNilErrs...),
		Context: map[string]interface{}{
			"error_count": len(nonNilErrs),
			"errors":      messages,
		},
		Recoverable: false,
	}
}
