package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a single field-schema violation.
type ValidationError struct {
	Spec          string   `json:"spec"`
	Field         string   `json:"field,omitempty"`
	Message       string   `json:"message"`
	ExpectedType  string   `json:"expected_type,omitempty"`
	ActualType    string   `json:"actual_type,omitempty"`
	UnknownFields []string `json:"unknown_fields,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.UnknownFields) > 0 {
		return fmt.Sprintf("unknown field(s) %v not allowed by %s", e.UnknownFields, e.Spec)
	}
	if e.Field != "" {
		return fmt.Sprintf("field '%s': %s (%s)", e.Field, e.Message, e.Spec)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Spec)
}

// MultiValidationError aggregates every violation found in one ValidateData
// pass.
type MultiValidationError struct {
	Spec   string
	Errors []*ValidationError
}

func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ValidationDetailer surfaces structured validation details for API error
// responses without type-asserting concrete structs.
type ValidationDetailer interface {
	Details() map[string]any
}

// Details returns the structured fields from this single validation error.
func (e *ValidationError) Details() map[string]any {
	d := make(map[string]any)
	if len(e.UnknownFields) > 0 {
		d["unknown_fields"] = e.UnknownFields
	}
	if e.Field != "" {
		d["field"] = e.Field
	}
	return d
}

// Details aggregates the failed field names from all child errors.
func (e *MultiValidationError) Details() map[string]any {
	d := make(map[string]any)
	var fields []string
	for _, ve := range e.Errors {
		if ve.Field != "" {
			fields = append(fields, ve.Field)
		}
	}
	if len(fields) > 0 {
		d["fields"] = fields
	}
	return d
}

// NewUnknownFieldsError creates an error for undeclared fields under a strict
// spec.
func NewUnknownFieldsError(spec string, fields []string) *ValidationError {
	return &ValidationError{
		Spec:          spec,
		Message:       fmt.Sprintf("unknown field(s) not allowed: %v", fields),
		UnknownFields: fields,
	}
}

// NewTypeMismatchError creates an error for type mismatches.
func NewTypeMismatchError(spec, field, expected, actual string) *ValidationError {
	return &ValidationError{
		Spec:         spec,
		Field:        field,
		Message:      fmt.Sprintf("expected %s, got %s", expected, actual),
		ExpectedType: expected,
		ActualType:   actual,
	}
}

// NewRequiredFieldError creates an error for missing required fields.
func NewRequiredFieldError(spec, field string) *ValidationError {
	return &ValidationError{
		Spec:    spec,
		Field:   field,
		Message: "required field is missing",
	}
}
