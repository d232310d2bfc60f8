package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// Checker accumulates structural findings during one Validate pass. Directive
// validators receive it so nested operands can be checked recursively and so
// every violation lands in a single report.
type Checker struct {
	registry *Registry
	errors   []*StructuralError
}

// Validate statically checks a mapping's shape against the registry's
// declared operand grammars. It never inspects a payload and collects every
// violation instead of failing fast; the result is nil or a
// *MultiStructuralError. Validation is a pure function of its input: the same
// mapping always yields the same report.
func Validate(registry *Registry, mapping any) error {
	c := &Checker{registry: registry}
	c.Check(mapping, nil)
	if len(c.errors) == 0 {
		return nil
	}
	return &MultiStructuralError{Errors: c.errors}
}

// Errorf records a finding at the given path.
func (c *Checker) Errorf(path []string, format string, args ...any) {
	c.errors = append(c.errors, &StructuralError{
		Path:    strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	})
}

// Check validates one mapping node. Raw arrays are literal values by the
// language's rules, so their elements are not descended into.
func (c *Checker) Check(node any, path []string) {
	switch RealTypeOf(node) {
	case KindDirective:
		obj := node.(map[string]any)
		name, operand, problem := directiveKey(obj)
		if problem != "" {
			c.Errorf(path, "%s", problem)
			return
		}
		d, ok := c.registry.Lookup(name)
		if !ok {
			c.Errorf(path, "unknown directive %q", name)
			return
		}
		d.Validate(c, operand, append(path, name))

	case KindObject:
		obj := node.(map[string]any)
		// Deterministic key order keeps the error report stable across runs.
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.Check(obj[k], append(path, k))
		}
	}
}

// checkKind verifies a value classifies as one of the allowed kinds,
// recursing when the value is itself a directive.
func (c *Checker) checkKind(v any, path []string, what string, allowed ...string) {
	kind := RealTypeOf(v)
	for _, a := range allowed {
		if kind == a {
			if kind == KindDirective {
				c.Check(v, path)
			}
			return
		}
	}
	c.Errorf(path, "%s must be %s, got %s", what, strings.Join(allowed, " or "), kind)
}

// requireObjectOperand narrows an operand to a plain object, recording an
// error otherwise.
func (c *Checker) requireObjectOperand(directive string, operand any, path []string) (map[string]any, bool) {
	if RealTypeOf(operand) != KindObject {
		c.Errorf(path, "%s operand must be an object, got %s", directive, RealTypeOf(operand))
		return nil, false
	}
	return operand.(map[string]any), true
}

// validateStringOperand accepts a string or a directive yielding one.
func validateStringOperand(directive string) ValidateFunc {
	return func(c *Checker, operand any, path []string) {
		c.checkKind(operand, path, directive+" operand", KindString, KindDirective)
	}
}

// validatePathOperand additionally parses literal JSONPath expressions so a
// bad path is caught before any event arrives.
func validatePathOperand(c *Checker, operand any, path []string) {
	c.checkKind(operand, path, "@path operand", KindString, KindDirective)
	if s, ok := operand.(string); ok && isJSONPath(s) {
		if _, err := jp.ParseString(s); err != nil {
			c.Errorf(path, "invalid JSONPath %q: %v", s, err)
		}
	}
}

// validateAnyOperand accepts any shape but still descends for nested
// directive problems.
func validateAnyOperand(c *Checker, operand any, path []string) {
	c.Check(operand, path)
}

// validateIgnoredOperand accepts anything; the directive ignores its operand.
func validateIgnoredOperand(_ *Checker, _ any, _ []string) {}

func validateIf(c *Checker, operand any, path []string) {
	obj, ok := c.requireObjectOperand("@if", operand, path)
	if !ok {
		return
	}
	_, hasExists := obj["exists"]
	_, hasTrue := obj["true"]
	if !hasExists && !hasTrue {
		c.Errorf(path, "@if requires an 'exists' or 'true' condition")
	}
	for key, value := range obj {
		switch key {
		case "exists", "true", "then", "else":
			c.Check(value, append(path, key))
		default:
			c.Errorf(append(path, key), "@if does not support key %q", key)
		}
	}
}

func validateMerge(c *Checker, operand any, path []string) {
	items, ok := operand.([]any)
	if !ok {
		c.Errorf(path, "@merge operand must be an array, got %s", RealTypeOf(operand))
		return
	}
	for i, item := range items {
		itemPath := append(path, fmt.Sprintf("%d", i))
		c.checkKind(item, itemPath, "@merge entry", KindObject, KindDirective)
		if RealTypeOf(item) == KindObject {
			c.Check(item, itemPath)
		}
	}
}

// validateObjectFields covers the shared {object, fields} operand of @omit
// and @pick.
func validateObjectFields(directive string) ValidateFunc {
	return func(c *Checker, operand any, path []string) {
		obj, ok := c.requireObjectOperand(directive, operand, path)
		if !ok {
			return
		}

		src, present := obj["object"]
		if !present {
			c.Errorf(path, "%s requires an 'object' key", directive)
		} else {
			c.checkKind(src, append(path, "object"), "'object'", KindObject, KindDirective)
			if RealTypeOf(src) == KindObject {
				c.Check(src, append(path, "object"))
			}
		}

		fields, present := obj["fields"]
		if !present {
			c.Errorf(path, "%s requires a 'fields' key", directive)
			return
		}
		switch RealTypeOf(fields) {
		case KindDirective:
			c.Check(fields, append(path, "fields"))
		case KindArray:
			for i, f := range fields.([]any) {
				c.checkKind(f, append(path, "fields", fmt.Sprintf("%d", i)), "field name", KindString, KindDirective)
			}
		default:
			c.Errorf(append(path, "fields"), "'fields' must be an array or directive, got %s", RealTypeOf(fields))
		}

		for key := range obj {
			if key != "object" && key != "fields" {
				c.Errorf(append(path, key), "%s does not support key %q", directive, key)
			}
		}
	}
}

func validateTimestamp(c *Checker, operand any, path []string) {
	obj, ok := c.requireObjectOperand("@timestamp", operand, path)
	if !ok {
		return
	}
	if _, present := obj["timestamp"]; !present {
		c.Errorf(path, "@timestamp requires a 'timestamp' key")
	}
	if _, present := obj["format"]; !present {
		c.Errorf(path, "@timestamp requires a 'format' key")
	}
	for key, value := range obj {
		switch key {
		case "timestamp":
			c.checkKind(value, append(path, key), "'timestamp'", KindString, KindNumber, KindDirective)
		case "format", "inputFormat":
			c.checkKind(value, append(path, key), "'"+key+"'", KindString, KindDirective)
		default:
			c.Errorf(append(path, key), "@timestamp does not support key %q", key)
		}
	}
}

func validateCast(c *Checker, operand any, path []string) {
	obj, ok := c.requireObjectOperand("@cast", operand, path)
	if !ok {
		return
	}
	if _, present := obj["value"]; !present {
		c.Errorf(path, "@cast requires a 'value' key")
	}
	to, present := obj["to"]
	if !present {
		c.Errorf(path, "@cast requires a 'to' key")
	}
	for key, value := range obj {
		switch key {
		case "value":
			c.Check(value, append(path, key))
		case "to":
			c.checkKind(value, append(path, key), "'to'", KindString, KindDirective)
			if s, ok := to.(string); ok && s != "string" && s != "number" {
				c.Errorf(append(path, key), "unsupported cast target %q (must be string or number)", s)
			}
		default:
			c.Errorf(append(path, key), "@cast does not support key %q", key)
		}
	}
}
