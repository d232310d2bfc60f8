package mapping

import (
	"strconv"
	"strings"
)

// SplitPath splits a dot-delimited field path into segments. A backslash
// escapes the following character, so "a\.b.c" addresses key "a.b" then "c".
func SplitPath(path string) []string {
	return splitPath(path)
}

// Resolve returns the value at the dot-delimited path of doc, reporting
// whether the path exists. Escaping and short-circuit semantics match
// @field.
func Resolve(doc map[string]any, path string) (any, bool) {
	v := resolvePath(doc, path)
	if IsUndefined(v) {
		return nil, false
	}
	return v, true
}

// splitPath splits a dot-delimited field path into segments. A backslash
// escapes the following character, so "a\.b.c" addresses key "a.b" then "c".
func splitPath(path string) []string {
	var segments []string
	var cur strings.Builder
	escaped := false
	for _, r := range path {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		cur.WriteRune('\\')
	}
	segments = append(segments, cur.String())
	return segments
}

// resolvePath walks doc along path, short-circuiting to Undefined on any
// missing or non-traversable intermediate segment. Numeric segments index
// into arrays.
func resolvePath(doc map[string]any, path string) any {
	var cur any = doc
	for _, seg := range splitPath(path) {
		switch t := cur.(type) {
		case map[string]any:
			v, ok := t[seg]
			if !ok {
				return Undefined
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return Undefined
			}
			cur = t[i]
		default:
			return Undefined
		}
	}
	return cur
}
