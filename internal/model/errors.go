package model

import (
	"fmt"
	"strings"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports one or more malformed request or record fields.
// It is a caller error: handlers map it to HTTP 400.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Add appends a field-level failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Empty reports whether no failures were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, message string) *ValidationError {
	ve := &ValidationError{}
	ve.Add(field, message)
	return ve
}

// UpstreamError wraps a failure from an external collaborator (speech-to-text,
// LLM). Recoverable: adapters degrade to fallbacks where possible, and
// handlers map it to HTTP 502 when it does surface.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
