package schema

import (
	"fmt"
)

// ValidateData checks data against the compiled spec. All violations are
// collected into one *MultiValidationError rather than failing at the first;
// a nil return means valid.
func (s *Spec) ValidateData(data map[string]any) error {
	if !s.compiled {
		return fmt.Errorf("spec %s: ValidateData called before Compile", s.Name)
	}

	var errs []*ValidationError

	if s.Strict {
		var unknown []string
		for key := range data {
			if _, declared := s.Fields[key]; !declared {
				unknown = append(unknown, key)
			}
		}
		if len(unknown) > 0 {
			errs = append(errs, NewUnknownFieldsError(s.Name, unknown))
		}
	}

	for name, field := range s.Fields {
		value, present := data[name]
		errs = append(errs, s.validateField(name, field, value, present)...)
	}

	if len(errs) > 0 {
		return &MultiValidationError{Spec: s.Name, Errors: errs}
	}
	return nil
}

func (s *Spec) validateField(path string, field *Field, value any, present bool) []*ValidationError {
	if !present {
		if field.Required {
			return []*ValidationError{NewRequiredFieldError(s.Name, path)}
		}
		return nil
	}
	if value == nil {
		if field.Required {
			return []*ValidationError{{Spec: s.Name, Field: path, Message: "required field cannot be null"}}
		}
		return nil
	}

	switch field.Type {
	case "string":
		return s.validateString(path, field, value)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []*ValidationError{NewTypeMismatchError(s.Name, path, "boolean", jsonTypeName(value))}
		}
		return nil
	case "number", "integer":
		return s.validateNumber(path, field, value)
	case "object":
		return s.validateObject(path, field, value)
	case "array":
		return s.validateArray(path, field, value)
	default:
		return []*ValidationError{{Spec: s.Name, Field: path, Message: fmt.Sprintf("unknown field type %q", field.Type)}}
	}
}

func (s *Spec) validateString(path string, field *Field, value any) []*ValidationError {
	str, ok := value.(string)
	if !ok {
		return []*ValidationError{NewTypeMismatchError(s.Name, path, "string", jsonTypeName(value))}
	}

	var errs []*ValidationError
	if len(field.Enum) > 0 && !enumContainsString(field.Enum, str) {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("value %q not in enum %v", str, field.Enum)})
	}
	if field.MinLength != nil && len(str) < *field.MinLength {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("string length %d is less than minimum %d", len(str), *field.MinLength)})
	}
	if field.MaxLength != nil && len(str) > *field.MaxLength {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("string length %d exceeds maximum %d", len(str), *field.MaxLength)})
	}
	if field.compiledPattern != nil && !field.compiledPattern.MatchString(str) {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("string does not match pattern %q", field.Pattern)})
	}
	return errs
}

func (s *Spec) validateNumber(path string, field *Field, value any) []*ValidationError {
	num, ok := value.(float64)
	if !ok {
		if i, isInt := value.(int); isInt {
			num = float64(i)
		} else {
			return []*ValidationError{NewTypeMismatchError(s.Name, path, field.Type, jsonTypeName(value))}
		}
	}

	var errs []*ValidationError
	if field.Type == "integer" && num != float64(int64(num)) {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: "expected integer, got float with fractional part"})
	}
	if len(field.Enum) > 0 && !enumContainsNumber(field.Enum, num) {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("value %v not in enum %v", num, field.Enum)})
	}
	if field.Min != nil && num < *field.Min {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("value %v is less than minimum %v", num, *field.Min)})
	}
	if field.Max != nil && num > *field.Max {
		errs = append(errs, &ValidationError{Spec: s.Name, Field: path, Message: fmt.Sprintf("value %v exceeds maximum %v", num, *field.Max)})
	}
	return errs
}

func (s *Spec) validateObject(path string, field *Field, value any) []*ValidationError {
	obj, ok := value.(map[string]any)
	if !ok {
		return []*ValidationError{NewTypeMismatchError(s.Name, path, "object", jsonTypeName(value))}
	}
	var errs []*ValidationError
	for name, nested := range field.Fields {
		nestedValue, present := obj[name]
		errs = append(errs, s.validateField(path+"."+name, nested, nestedValue, present)...)
	}
	return errs
}

func (s *Spec) validateArray(path string, field *Field, value any) []*ValidationError {
	arr, ok := value.([]any)
	if !ok {
		return []*ValidationError{NewTypeMismatchError(s.Name, path, "array", jsonTypeName(value))}
	}
	if field.Items == nil {
		return nil
	}
	var errs []*ValidationError
	for i, elem := range arr {
		errs = append(errs, s.validateField(fmt.Sprintf("%s[%d]", path, i), field.Items, elem, true)...)
	}
	return errs
}

func enumContainsString(enum []any, s string) bool {
	for _, v := range enum {
		if allowed, ok := v.(string); ok && allowed == s {
			return true
		}
	}
	return false
}

func enumContainsNumber(enum []any, n float64) bool {
	for _, v := range enum {
		if allowed, ok := enumNumber(v); ok && allowed == n {
			return true
		}
	}
	return false
}

// jsonTypeName returns a human-readable type name for JSON values.
func jsonTypeName(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
