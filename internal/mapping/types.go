package mapping

import "strings"

// undefined is the evaluator's internal absent-value marker. It is distinct
// from JSON null: a raw-object key whose value resolves to undefined is
// dropped from the result, while null is preserved.
type undefined struct{}

// Undefined is the singleton absent-value marker.
var Undefined = undefined{}

// IsUndefined reports whether v is the absent-value marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Kind classifications returned by RealTypeOf.
const (
	KindDirective = "directive"
	KindObject    = "object"
	KindArray     = "array"
	KindNull      = "null"
	KindString    = "string"
	KindNumber    = "number"
	KindBoolean   = "boolean"
)

// RealTypeOf classifies a JSON-shaped Go value. An object with at least one
// "@"-prefixed key classifies as a directive; whether it is a well-formed
// one (exactly one "@" key, nothing else) is a separate check.
func RealTypeOf(v any) string {
	switch t := v.(type) {
	case nil:
		return KindNull
	case map[string]any:
		for k := range t {
			if strings.HasPrefix(k, "@") {
				return KindDirective
			}
		}
		return KindObject
	case []any:
		return KindArray
	case string:
		return KindString
	case bool:
		return KindBoolean
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	default:
		return "unknown"
	}
}

// directiveKey extracts the invocation from a value classified as a
// directive. It returns an error message (empty = ok) so both the evaluator
// and validator share one notion of well-formedness: exactly one "@" key and
// no plain keys alongside it.
func directiveKey(obj map[string]any) (name string, operand any, problem string) {
	var plain []string
	for k := range obj {
		if strings.HasPrefix(k, "@") {
			if name != "" {
				return "", nil, "object has more than one directive key"
			}
			name = k
		} else {
			plain = append(plain, k)
		}
	}
	if len(plain) > 0 {
		return "", nil, "object mixes directive and plain keys"
	}
	return name, obj[name], ""
}
