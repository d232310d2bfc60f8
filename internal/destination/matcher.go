package destination

import (
	"strings"
)

// Matcher decides whether an event satisfies a subscription predicate.
type Matcher interface {
	Matches(pattern map[string]any, event map[string]any) bool
}

// DefaultMatcher is the structural matcher every destination starts with.
var DefaultMatcher Matcher = StructuralMatcher{}

// StructuralMatcher matches events by structure: a pattern object matches
// when every key it names is present in the event (at any nesting depth the
// pattern expresses) with an equal value. A nil or empty pattern matches
// everything.
//
// Three operator keys extend plain equality:
//
//	{"type": {"$anyOf": ["track", "page"]}}   value is one of the listed
//	{"type": {"$not": "screen"}}              value differs
//	{"userId": {"$exists": true}}             key presence, value ignored
type StructuralMatcher struct{}

func (StructuralMatcher) Matches(pattern map[string]any, event map[string]any) bool {
	if len(pattern) == 0 {
		return true
	}
	return matchObject(pattern, event)
}

func matchObject(pattern, event map[string]any) bool {
	for key, want := range pattern {
		got, present := event[key]
		if op, ok := operatorPattern(want); ok {
			if !matchOperator(op, got, present) {
				return false
			}
			continue
		}
		if !present {
			return false
		}
		if !matchValue(want, got) {
			return false
		}
	}
	return true
}

func matchValue(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		return matchObject(w, g)
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !matchValue(w[i], g[i]) {
				return false
			}
		}
		return true
	default:
		return looseEqual(want, got)
	}
}

// looseEqual compares scalars. Numbers compare by value so 2 and 2.0 match
// regardless of how the JSON decoder typed them.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

type operator struct {
	name    string
	operand any
}

// operatorPattern reports whether want is a single-key object whose key is an
// operator. Objects mixing operator and plain keys are treated as plain
// structure and will simply not match (events don't contain $-keys).
func operatorPattern(want any) (operator, bool) {
	obj, ok := want.(map[string]any)
	if !ok || len(obj) != 1 {
		return operator{}, false
	}
	for k, v := range obj {
		if strings.HasPrefix(k, "$") {
			return operator{name: k, operand: v}, true
		}
	}
	return operator{}, false
}

func matchOperator(op operator, got any, present bool) bool {
	switch op.name {
	case "$exists":
		want, _ := op.operand.(bool)
		return present == want
	case "$not":
		return !present || !matchValue(op.operand, got)
	case "$anyOf":
		if !present {
			return false
		}
		options, ok := op.operand.([]any)
		if !ok {
			return false
		}
		for _, option := range options {
			if matchValue(option, got) {
				return true
			}
		}
		return false
	default:
		// Unknown operators never match; misspelled predicates should be
		// loud in testing rather than silently matching everything.
		return false
	}
}
