// Package schema declares and validates the field schemas that destination
// actions attach to their settings and payloads. Specs are declared in Go at
// destination-definition time, compiled once, and then applied to every
// incoming event.
package schema

import (
	"fmt"
	"regexp"
)

// Spec is a compiled field schema for one JSON object.
type Spec struct {
	// Name identifies the spec in error messages ("slack.settings").
	Name string

	// Fields maps field name to its declaration.
	Fields map[string]*Field

	// Strict rejects fields not declared in the spec.
	Strict bool

	compiled bool
}

// Field declares constraints for a single field.
//
// Type names: string, boolean, number, integer, object, array.
type Field struct {
	Type     string
	Required bool

	// Enum restricts values to a fixed set (strings and numbers).
	Enum []any

	// Min/Max bound numbers.
	Min *float64
	Max *float64

	// MinLength/MaxLength/Pattern constrain strings.
	MinLength *int
	MaxLength *int
	Pattern   string

	// Fields declares the nested shape of an object field.
	Fields map[string]*Field

	// Items declares the element shape of an array field.
	Items *Field

	compiledPattern *regexp.Regexp
}

// Compile checks the declaration itself and compiles regex patterns. It must
// be called before ValidateData; action construction does this once.
func (s *Spec) Compile() error {
	if s.Name == "" {
		return fmt.Errorf("schema spec requires a name")
	}
	for name, field := range s.Fields {
		if field == nil {
			return fmt.Errorf("spec %s: field %q has no declaration", s.Name, name)
		}
		if err := field.compile(); err != nil {
			return fmt.Errorf("spec %s: field %q: %w", s.Name, name, err)
		}
	}
	s.compiled = true
	return nil
}

func (f *Field) compile() error {
	switch f.Type {
	case "string":
		if f.Min != nil || f.Max != nil {
			return fmt.Errorf("string fields do not support min/max")
		}
		if f.MinLength != nil && *f.MinLength < 0 {
			return fmt.Errorf("minLength cannot be negative")
		}
		if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
			return fmt.Errorf("minLength (%d) cannot exceed maxLength (%d)", *f.MinLength, *f.MaxLength)
		}
		if f.Pattern != "" {
			compiled, err := regexp.Compile(f.Pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			f.compiledPattern = compiled
		}
		for i, v := range f.Enum {
			if _, ok := v.(string); !ok {
				return fmt.Errorf("enum[%d]: expected string, got %T", i, v)
			}
		}
	case "number", "integer":
		if f.MinLength != nil || f.MaxLength != nil || f.Pattern != "" {
			return fmt.Errorf("%s fields do not support length or pattern constraints", f.Type)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("min (%v) cannot exceed max (%v)", *f.Min, *f.Max)
		}
		for i, v := range f.Enum {
			if _, ok := enumNumber(v); !ok {
				return fmt.Errorf("enum[%d]: expected number, got %T", i, v)
			}
		}
	case "boolean":
		if len(f.Enum) > 0 || f.Min != nil || f.Max != nil || f.MinLength != nil || f.MaxLength != nil || f.Pattern != "" {
			return fmt.Errorf("boolean fields do not support constraints")
		}
	case "object":
		for name, nested := range f.Fields {
			if nested == nil {
				return fmt.Errorf("nested field %q has no declaration", name)
			}
			if err := nested.compile(); err != nil {
				return fmt.Errorf("nested field %q: %w", name, err)
			}
		}
	case "array":
		if f.Items != nil {
			if err := f.Items.compile(); err != nil {
				return fmt.Errorf("items: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported type %q (must be: string, boolean, number, integer, object, array)", f.Type)
	}
	return nil
}

func enumNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
