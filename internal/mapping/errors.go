package mapping

import (
	"fmt"
	"strings"
)

// InvalidDirectiveNameError reports a Register call with a name that does not
// match ^@[a-zA-Z]+$.
type InvalidDirectiveNameError struct {
	Name string
}

func (e *InvalidDirectiveNameError) Error() string {
	return fmt.Sprintf("invalid directive name %q (must match ^@[a-zA-Z]+$)", e.Name)
}

// UnknownDirectiveError reports a mapping that invokes a directive name with
// no registration. It is raised both by the static validator and, if an
// unvalidated mapping reaches evaluation, by the evaluator.
type UnknownDirectiveError struct {
	Name string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("unknown directive %q", e.Name)
}

// StructuralError is a single malformed-mapping finding, tagged with the
// dot-path at which it occurred. Fixing the mapping definition is the only
// remedy; retrying never helps.
type StructuralError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *StructuralError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// MultiStructuralError aggregates every structural finding from one Validate
// pass. The validator collects rather than failing fast so a caller sees all
// problems in one report.
type MultiStructuralError struct {
	Errors []*StructuralError
}

func (e *MultiStructuralError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid mapping"
	}
	if len(e.Errors) == 1 {
		return "invalid mapping: " + e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid mapping (%d problems): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Details surfaces the per-path findings for API error responses.
func (e *MultiStructuralError) Details() map[string]any {
	problems := make([]map[string]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		problems = append(problems, map[string]string{"path": err.Path, "message": err.Message})
	}
	return map[string]any{"problems": problems}
}

// EvaluationError reports a directive that received a runtime operand of the
// wrong type during resolution (e.g. @lowercase given a number). It is fatal
// to the evaluation that raised it but never corrupts sibling evaluations.
type EvaluationError struct {
	Directive string
	Message   string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Directive, e.Message)
}

func evalErrorf(directive, format string, args ...any) *EvaluationError {
	return &EvaluationError{Directive: directive, Message: fmt.Sprintf(format, args...)}
}
