package mapping

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasttemplate"
)

// registerBuiltins installs the standard directive set. Evaluation and
// validation halves are registered together so the two can never drift apart
// for a given name.
func registerBuiltins(r *Registry) {
	mustRegister(r, "@field", Directive{Evaluate: evalField, Validate: validateStringOperand("@field")})
	mustRegister(r, "@path", Directive{Evaluate: evalPath, Validate: validatePathOperand})
	mustRegister(r, "@if", Directive{Evaluate: evalIf, Validate: validateIf})
	mustRegister(r, "@merge", Directive{Evaluate: evalMerge, Validate: validateMerge})
	mustRegister(r, "@omit", Directive{Evaluate: evalOmit, Validate: validateObjectFields("@omit")})
	mustRegister(r, "@pick", Directive{Evaluate: evalPick, Validate: validateObjectFields("@pick")})
	mustRegister(r, "@json", Directive{Evaluate: evalJSON, Validate: validateAnyOperand})
	mustRegister(r, "@base64", Directive{Evaluate: evalBase64, Validate: validateStringOperand("@base64")})
	mustRegister(r, "@lowercase", Directive{Evaluate: evalLowercase, Validate: validateStringOperand("@lowercase")})
	mustRegister(r, "@template", Directive{Evaluate: evalTemplate, Validate: validateStringOperand("@template")})
	mustRegister(r, "@handlebars", Directive{Evaluate: evalTemplate, Validate: validateStringOperand("@handlebars")})
	mustRegister(r, "@timestamp", Directive{Evaluate: evalTimestamp, Validate: validateTimestamp})
	mustRegister(r, "@uuid", Directive{Evaluate: evalUUID, Validate: validateIgnoredOperand})
	mustRegister(r, "@cast", Directive{Evaluate: evalCast, Validate: validateCast})
	mustRegister(r, "@root", Directive{Evaluate: evalRoot, Validate: validateIgnoredOperand})
}

// resolveString resolves an operand that must yield a string.
func resolveString(e *Evaluator, directive string, operand any, payload map[string]any) (string, error) {
	v, err := e.resolve(operand, payload)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", evalErrorf(directive, "operand must resolve to a string, got %s", RealTypeOf(v))
	}
	return s, nil
}

func evalField(e *Evaluator, operand any, payload map[string]any) (any, error) {
	path, err := resolveString(e, "@field", operand, payload)
	if err != nil {
		return nil, err
	}
	return resolvePath(payload, path), nil
}

// evalPath resolves a field path with JSONPath support. Expressions using
// wildcard or descendant syntax always yield an array (possibly empty);
// plain paths yield the single match or Undefined.
func evalPath(e *Evaluator, operand any, payload map[string]any) (any, error) {
	path, err := resolveString(e, "@path", operand, payload)
	if err != nil {
		return nil, err
	}
	if !isJSONPath(path) {
		return resolvePath(payload, path), nil
	}

	expr, perr := jp.ParseString(path)
	if perr != nil {
		return nil, evalErrorf("@path", "invalid JSONPath %q: %v", path, perr)
	}
	matches := expr.Get(payload)
	if isMultiMatch(path) {
		if matches == nil {
			matches = []any{}
		}
		return matches, nil
	}
	switch len(matches) {
	case 0:
		return Undefined, nil
	case 1:
		return matches[0], nil
	default:
		return matches, nil
	}
}

func isJSONPath(path string) bool {
	return strings.HasPrefix(path, "$") || isMultiMatch(path)
}

func isMultiMatch(path string) bool {
	return strings.Contains(path, "*") || strings.Contains(path, "..") || strings.Contains(path, "[")
}

// evalIf implements the conditional. "exists" treats both a missing path and
// an explicit null as absent; "true" requires a strict boolean true. Only the
// taken branch is evaluated.
func evalIf(e *Evaluator, operand any, payload map[string]any) (any, error) {
	obj, ok := operand.(map[string]any)
	if !ok {
		return nil, evalErrorf("@if", "operand must be an object, got %s", RealTypeOf(operand))
	}

	matched := false
	if cond, present := obj["exists"]; present {
		v, err := e.resolve(cond, payload)
		if err != nil {
			return nil, err
		}
		matched = !IsUndefined(v) && v != nil
	} else if cond, present := obj["true"]; present {
		v, err := e.resolve(cond, payload)
		if err != nil {
			return nil, err
		}
		matched = v == true
	}

	branch := "else"
	if matched {
		branch = "then"
	}
	value, present := obj[branch]
	if !present {
		return Undefined, nil
	}
	return e.resolve(value, payload)
}

// evalMerge shallow-merges evaluated entries left to right; later keys win.
func evalMerge(e *Evaluator, operand any, payload map[string]any) (any, error) {
	items, ok := operand.([]any)
	if !ok {
		return nil, evalErrorf("@merge", "operand must be an array, got %s", RealTypeOf(operand))
	}
	out := make(map[string]any)
	for i, item := range items {
		v, err := e.resolve(item, payload)
		if err != nil {
			return nil, err
		}
		if IsUndefined(v) {
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, evalErrorf("@merge", "entry %d must resolve to an object, got %s", i, RealTypeOf(v))
		}
		for k, val := range obj {
			out[k] = val
		}
	}
	return out, nil
}

// resolveObjectFields evaluates the shared {object, fields} operand of @omit
// and @pick. The source object is never mutated; callers get a fresh copy of
// its entries plus the field-name set.
func resolveObjectFields(e *Evaluator, directive string, operand any, payload map[string]any) (map[string]any, map[string]bool, error) {
	obj, ok := operand.(map[string]any)
	if !ok {
		return nil, nil, evalErrorf(directive, "operand must be an object, got %s", RealTypeOf(operand))
	}

	srcVal, err := e.resolve(obj["object"], payload)
	if err != nil {
		return nil, nil, err
	}
	src, ok := srcVal.(map[string]any)
	if !ok {
		return nil, nil, evalErrorf(directive, "'object' must resolve to an object, got %s", RealTypeOf(srcVal))
	}

	fieldsVal := obj["fields"]
	if RealTypeOf(fieldsVal) == KindDirective {
		fieldsVal, err = e.resolve(fieldsVal, payload)
		if err != nil {
			return nil, nil, err
		}
	}
	rawFields, ok := fieldsVal.([]any)
	if !ok {
		return nil, nil, evalErrorf(directive, "'fields' must resolve to an array, got %s", RealTypeOf(fieldsVal))
	}

	fields := make(map[string]bool, len(rawFields))
	for i, f := range rawFields {
		if RealTypeOf(f) == KindDirective {
			f, err = e.resolve(f, payload)
			if err != nil {
				return nil, nil, err
			}
		}
		name, ok := f.(string)
		if !ok {
			return nil, nil, evalErrorf(directive, "fields[%d] must resolve to a string, got %s", i, RealTypeOf(f))
		}
		fields[name] = true
	}

	copied := make(map[string]any, len(src))
	for k, v := range src {
		copied[k] = v
	}
	return copied, fields, nil
}

func evalOmit(e *Evaluator, operand any, payload map[string]any) (any, error) {
	src, fields, err := resolveObjectFields(e, "@omit", operand, payload)
	if err != nil {
		return nil, err
	}
	for name := range fields {
		delete(src, name)
	}
	return src, nil
}

func evalPick(e *Evaluator, operand any, payload map[string]any) (any, error) {
	src, fields, err := resolveObjectFields(e, "@pick", operand, payload)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for name := range fields {
		if v, ok := src[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

func evalJSON(e *Evaluator, operand any, payload map[string]any) (any, error) {
	v, err := e.resolve(operand, payload)
	if err != nil {
		return nil, err
	}
	if IsUndefined(v) {
		return Undefined, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, evalErrorf("@json", "operand is not JSON-serializable: %v", err)
	}
	return string(data), nil
}

func evalBase64(e *Evaluator, operand any, payload map[string]any) (any, error) {
	s, err := resolveString(e, "@base64", operand, payload)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString([]byte(s)), nil
}

func evalLowercase(e *Evaluator, operand any, payload map[string]any) (any, error) {
	s, err := resolveString(e, "@lowercase", operand, payload)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

// evalTemplate renders {{field.path}} placeholders against the payload.
// Output is plain text with no HTML escaping: these payloads target JSON
// partner APIs, where escaping "&" in a message body would corrupt it. Both
// @template and @handlebars share this renderer and this policy.
func evalTemplate(e *Evaluator, operand any, payload map[string]any) (any, error) {
	s, err := resolveString(e, "@template", operand, payload)
	if err != nil {
		return nil, err
	}
	t, err := fasttemplate.NewTemplate(s, "{{", "}}")
	if err != nil {
		return nil, evalErrorf("@template", "invalid template: %v", err)
	}
	out := t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		v := resolvePath(payload, strings.TrimSpace(tag))
		return w.Write([]byte(templateString(v)))
	})
	return out, nil
}

// templateString renders one placeholder value. Absent values render empty.
func templateString(v any) string {
	switch t := v.(type) {
	case undefined:
		return ""
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// evalTimestamp parses and reformats a timestamp. An unparseable input yields
// null rather than an error: upstream event producers routinely send garbage
// timestamps and one bad field should not sink the whole payload.
func evalTimestamp(e *Evaluator, operand any, payload map[string]any) (any, error) {
	obj, ok := operand.(map[string]any)
	if !ok {
		return nil, evalErrorf("@timestamp", "operand must be an object, got %s", RealTypeOf(operand))
	}

	raw, err := e.resolve(obj["timestamp"], payload)
	if err != nil {
		return nil, err
	}
	format, err := resolveString(e, "@timestamp", obj["format"], payload)
	if err != nil {
		return nil, err
	}

	var parsed time.Time
	switch t := raw.(type) {
	case string:
		if layoutRaw, present := obj["inputFormat"]; present {
			layout, err := resolveString(e, "@timestamp", layoutRaw, payload)
			if err != nil {
				return nil, err
			}
			parsed, err = time.Parse(layout, t)
			if err != nil {
				return nil, nil
			}
		} else {
			var perr error
			parsed, perr = dateparse.ParseAny(t)
			if perr != nil {
				return nil, nil
			}
		}
	case float64:
		// Heuristic: values past the year 33658 in seconds are milliseconds.
		if t > 1e12 {
			parsed = time.UnixMilli(int64(t)).UTC()
		} else {
			parsed = time.Unix(int64(t), 0).UTC()
		}
	default:
		return nil, nil
	}

	switch format {
	case "json":
		return parsed.UTC().Format(time.RFC3339), nil
	case "unix":
		return float64(parsed.Unix()), nil
	case "unixMilli":
		return float64(parsed.UnixMilli()), nil
	default:
		return parsed.Format(format), nil
	}
}

func evalUUID(_ *Evaluator, _ any, _ map[string]any) (any, error) {
	return uuid.NewString(), nil
}

// evalCast converts between string and number. Decimal arithmetic keeps
// round-trips exact: casting 9007199254740993 to string must not pass
// through a lossy float formatting step.
func evalCast(e *Evaluator, operand any, payload map[string]any) (any, error) {
	obj, ok := operand.(map[string]any)
	if !ok {
		return nil, evalErrorf("@cast", "operand must be an object, got %s", RealTypeOf(operand))
	}
	to, err := resolveString(e, "@cast", obj["to"], payload)
	if err != nil {
		return nil, err
	}
	v, err := e.resolve(obj["value"], payload)
	if err != nil {
		return nil, err
	}

	switch to {
	case "string":
		switch t := v.(type) {
		case string:
			return t, nil
		case float64:
			return decimal.NewFromFloat(t).String(), nil
		default:
			return nil, evalErrorf("@cast", "cannot cast %s to string", RealTypeOf(v))
		}
	case "number":
		switch t := v.(type) {
		case float64:
			return t, nil
		case string:
			d, derr := decimal.NewFromString(strings.TrimSpace(t))
			if derr != nil {
				return nil, evalErrorf("@cast", "cannot cast %q to number", t)
			}
			return d.InexactFloat64(), nil
		default:
			return nil, evalErrorf("@cast", "cannot cast %s to number", RealTypeOf(v))
		}
	default:
		return nil, evalErrorf("@cast", "unsupported target type %q", to)
	}
}

func evalRoot(_ *Evaluator, _ any, payload map[string]any) (any, error) {
	return payload, nil
}
