package mapping

import "fmt"

// Evaluator resolves mappings against event payloads using a frozen directive
// registry. It is stateless apart from the registry and safe for concurrent
// use.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator over the given registry.
func NewEvaluator(registry *Registry) *Evaluator {
	if registry == nil {
		panic("mapping: registry must not be nil")
	}
	return &Evaluator{registry: registry}
}

// Registry returns the evaluator's directive registry.
func (e *Evaluator) Registry() *Registry { return e.registry }

// Evaluate resolves mapping against payload and returns the produced JSON
// value. The result may be Undefined when the whole mapping resolves to an
// absent value; callers that need JSON should treat that as null.
//
// A nil payload is treated as an empty object. Mappings are never mutated;
// evaluation always builds fresh containers.
func (e *Evaluator) Evaluate(mapping any, payload map[string]any) (any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return e.resolve(mapping, payload)
}

// resolve classifies one node and dispatches. Directives control evaluation
// of their own operands, so there is no generic pre-resolution here.
func (e *Evaluator) resolve(node any, payload map[string]any) (any, error) {
	switch RealTypeOf(node) {
	case KindDirective:
		obj := node.(map[string]any)
		name, operand, problem := directiveKey(obj)
		if problem != "" {
			return nil, &StructuralError{Message: problem}
		}
		d, ok := e.registry.Lookup(name)
		if !ok {
			return nil, &UnknownDirectiveError{Name: name}
		}
		return d.Evaluate(e, operand, payload)

	case KindObject:
		obj := node.(map[string]any)
		out := make(map[string]any, len(obj))
		for k, v := range obj {
			resolved, err := e.resolve(v, payload)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			// Absent values drop their key; explicit null survives.
			if IsUndefined(resolved) {
				continue
			}
			out[k] = resolved
		}
		return out, nil

	default:
		// Arrays and scalars are literal. Array elements are deliberately not
		// scanned for directives; compound directives evaluate their own
		// array operands where that matters.
		return node, nil
	}
}
