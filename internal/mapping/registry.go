// Package mapping implements the declarative transformation language used to
// shape analytics events into partner-API payloads.
//
// A mapping is a plain JSON value. An object whose single key starts with "@"
// is a directive invocation; everything else is a literal template. Mappings
// are statically checkable (Validate) and evaluated against an event payload
// (Evaluator.Evaluate).
package mapping

import (
	"fmt"
	"regexp"
)

// directiveNameRE constrains registered directive names.
var directiveNameRE = regexp.MustCompile(`^@[a-zA-Z]+$`)

// EvaluateFunc resolves a directive's operand against the payload.
// Compound directives call back into the Evaluator for nested operands,
// which is what makes short-circuiting directives like @if possible.
type EvaluateFunc func(e *Evaluator, operand any, payload map[string]any) (any, error)

// ValidateFunc statically checks a directive's operand shape. Violations are
// appended to the checker; validation never inspects a payload.
type ValidateFunc func(c *Checker, operand any, path []string)

// Directive pairs the runtime and static halves of one directive.
type Directive struct {
	Evaluate EvaluateFunc
	Validate ValidateFunc
}

// Registry maps directive names to their implementations. It is populated at
// startup and frozen before any concurrent use; lookups after Freeze are
// safe without locking.
type Registry struct {
	directives map[string]Directive
	frozen     bool
}

// NewRegistry returns a registry pre-loaded with the builtin directive set,
// ready to be frozen (or extended first).
func NewRegistry() *Registry {
	r := &Registry{directives: make(map[string]Directive)}
	registerBuiltins(r)
	return r
}

// Register adds a directive under name.
func (r *Registry) Register(name string, d Directive) error {
	if r.frozen {
		return fmt.Errorf("directive registry is frozen, cannot register %q", name)
	}
	if !directiveNameRE.MatchString(name) {
		return &InvalidDirectiveNameError{Name: name}
	}
	if _, exists := r.directives[name]; exists {
		return fmt.Errorf("directive %q already registered", name)
	}
	if d.Evaluate == nil || d.Validate == nil {
		return fmt.Errorf("directive %q must supply both evaluate and validate functions", name)
	}
	r.directives[name] = d
	return nil
}

// Freeze marks the registry read-only. Registration attempts after Freeze
// fail; this is what makes the registry safe to share across concurrent
// evaluations.
func (r *Registry) Freeze() { r.frozen = true }

// Lookup returns the directive registered under name.
func (r *Registry) Lookup(name string) (Directive, bool) {
	d, ok := r.directives[name]
	return d, ok
}

func mustRegister(r *Registry, name string, d Directive) {
	if err := r.Register(name, d); err != nil {
		panic(err)
	}
}
