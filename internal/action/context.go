package action

import (
	"strings"

	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
)

// Context is the per-invocation execution context threaded through the
// pipeline. Stages never mutate it in place: transforms return a new payload
// value and fan-out branches get their own copy, so concurrent branches can
// never alias each other's state.
type Context struct {
	// Payload is the (possibly mapped) action payload.
	Payload map[string]any

	// Settings is the merged destination + subscription settings.
	Settings map[string]any

	// Mapping is the subscription's transformation, applied before
	// validation. Nil means the event passes through as the payload.
	Mapping any

	// Page is the pagination cursor for autocomplete invocations.
	Page string

	// bindings holds values injected by cachedRequest (under its "as" name)
	// and the current fan-out element (under the fan-out's "as" name).
	bindings map[string]any
}

// Binding returns a value bound by a cachedRequest or fan-out stage.
func (c *Context) Binding(name string) (any, bool) {
	v, ok := c.bindings[name]
	return v, ok
}

// Lookup resolves a dot path against the context. The first segment selects
// the root: "payload.", "settings.", or a binding name.
func (c *Context) Lookup(path string) (any, bool) {
	root, rest, found := strings.Cut(path, ".")
	switch root {
	case "payload":
		if !found {
			return c.Payload, true
		}
		return mapping.Resolve(c.Payload, rest)
	case "settings":
		if !found {
			return c.Settings, true
		}
		return mapping.Resolve(c.Settings, rest)
	default:
		v, ok := c.bindings[root]
		if !ok {
			return nil, false
		}
		if !found {
			return v, true
		}
		obj, isObj := v.(map[string]any)
		if !isObj {
			return nil, false
		}
		return mapping.Resolve(obj, rest)
	}
}

// withPayload returns a copy of the context carrying a new payload value.
func (c *Context) withPayload(payload map[string]any) *Context {
	out := *c
	out.Payload = payload
	return &out
}

// withBinding returns a copy of the context with one more binding. The
// bindings map is copied so sibling branches stay independent.
func (c *Context) withBinding(name string, value any) *Context {
	out := *c
	out.bindings = make(map[string]any, len(c.bindings)+1)
	for k, v := range c.bindings {
		out.bindings[k] = v
	}
	out.bindings[name] = value
	return &out
}
