// Package action implements the per-destination execution pipeline: schema
// validation, mapping application, cached lookups, fan-out over an array
// field, and the terminal partner request.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
	"github.com/mixpanel/action-destinations-sub001/internal/requester"
	"github.com/mixpanel/action-destinations-sub001/internal/schema"
)

// RequestFunc is the terminal stage: one outbound partner call per branch.
type RequestFunc func(ctx context.Context, client *requester.Client, ec *Context) (*requester.Response, error)

// LookupFunc computes a cacheable value, typically via one or more partner
// requests (e.g. resolving a channel name to an id).
type LookupFunc func(ctx context.Context, client *requester.Client, ec *Context) (any, error)

// AutocompleteFunc pages through an externally sourced value list for
// configuration UIs. It must be side-effect free.
type AutocompleteFunc func(ctx context.Context, client *requester.Client, ec *Context) (*AutocompleteResponse, error)

// AutocompleteItem is one selectable value.
type AutocompleteItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// AutocompleteResponse is one page of selectable values.
type AutocompleteResponse struct {
	Data       []AutocompleteItem `json:"data"`
	Pagination struct {
		NextPage string `json:"nextPage,omitempty"`
	} `json:"pagination"`
}

// FieldMap declares an action-owned mapping applied to one payload field
// after the subscription mapping. Steps compose in declaration order, each
// producing a new payload value.
type FieldMap struct {
	// Field is the dot path whose value is replaced.
	Field string

	// Mapping is evaluated against the current payload.
	Mapping any
}

// CachedRequestConfig declares the cached-lookup stage.
type CachedRequestConfig struct {
	// TTL bounds how long one computed value is reused.
	TTL time.Duration

	// Key derives the cache key from the execution context.
	Key func(ec *Context) (string, error)

	// Value computes a fresh value on cache miss. Failures are never cached.
	Value LookupFunc

	// As names the context binding later stages read the value from.
	As string
}

// FanOutConfig declares the fan-out stage.
type FanOutConfig struct {
	// On is a context path ("payload.channels", "settings.regions") that
	// must resolve to an array.
	On string

	// As names the per-branch element binding.
	As string
}

// Definition declares one action as plain configuration. It is built once at
// destination-load time; New compiles it into an executable Action.
type Definition struct {
	Slug         string
	Settings     *schema.Spec
	Payload      *schema.Spec
	MapFields    []FieldMap
	Autocomplete map[string]AutocompleteFunc
	CachedReq    *CachedRequestConfig
	FanOut       *FanOutConfig
	Request      RequestFunc
}

// Action executes one unit of destination work. Constructed once, invoked
// once per subscribed event.
type Action struct {
	def       Definition
	evaluator *mapping.Evaluator
	cache     *ttlCache
	flight    singleflight.Group
}

// New compiles a definition into an executable action.
func New(def Definition, evaluator *mapping.Evaluator) (*Action, error) {
	if def.Slug == "" {
		return nil, fmt.Errorf("action requires a slug")
	}
	if def.Request == nil {
		return nil, fmt.Errorf("action %q requires a request function", def.Slug)
	}
	if evaluator == nil {
		return nil, fmt.Errorf("action %q requires a mapping evaluator", def.Slug)
	}
	if def.Settings != nil {
		if err := def.Settings.Compile(); err != nil {
			return nil, fmt.Errorf("action %q: %w", def.Slug, err)
		}
	}
	if def.Payload != nil {
		if err := def.Payload.Compile(); err != nil {
			return nil, fmt.Errorf("action %q: %w", def.Slug, err)
		}
	}
	for i, fm := range def.MapFields {
		if fm.Field == "" {
			return nil, fmt.Errorf("action %q: mapField %d requires a field path", def.Slug, i)
		}
		if err := mapping.Validate(evaluator.Registry(), fm.Mapping); err != nil {
			return nil, fmt.Errorf("action %q: mapField %q: %w", def.Slug, fm.Field, err)
		}
	}
	a := &Action{def: def, evaluator: evaluator}
	if def.CachedReq != nil {
		cr := def.CachedReq
		if cr.Key == nil || cr.Value == nil || cr.As == "" || cr.TTL <= 0 {
			return nil, fmt.Errorf("action %q: cachedRequest requires ttl, key, value, and as", def.Slug)
		}
		a.cache = newTTLCache(cr.TTL)
	}
	return a, nil
}

// Slug returns the action's identifier.
func (a *Action) Slug() string { return a.def.Slug }

// BranchResult is the settled outcome of one fan-out branch (or of the single
// implicit branch when no fan-out is declared).
type BranchResult struct {
	// Index is the branch's position in the fan-out source array.
	Index int

	// Element is the fan-out element the branch was bound to; nil without
	// fan-out.
	Element any

	// Response is the partner response on success.
	Response *requester.Response

	// Err is the branch's failure, if any. A failed branch never aborts its
	// siblings.
	Err error
}

// Execute runs the pipeline for one invocation. Schema failures halt before
// any network call; per-branch request failures settle into the result list.
func (a *Action) Execute(ctx context.Context, client *requester.Client, ec *Context) ([]BranchResult, error) {
	if ec.bindings == nil {
		// Copy rather than write through: the caller may share ec across
		// concurrent invocations.
		copied := *ec
		copied.bindings = map[string]any{}
		ec = &copied
	}

	if a.def.Settings != nil {
		if err := a.def.Settings.ValidateData(ec.Settings); err != nil {
			return nil, err
		}
	}

	ec, err := a.applySubscriptionMapping(ec)
	if err != nil {
		return nil, err
	}

	if a.def.Payload != nil {
		if err := a.def.Payload.ValidateData(ec.Payload); err != nil {
			return nil, err
		}
	}

	ec, err = a.applyFieldMappings(ec)
	if err != nil {
		return nil, err
	}

	if a.def.CachedReq != nil {
		ec, err = a.runCachedRequest(ctx, client, ec)
		if err != nil {
			return nil, err
		}
	}

	branches, err := a.branchContexts(ec)
	if err != nil {
		return nil, err
	}

	results := make([]BranchResult, len(branches))
	var wg sync.WaitGroup
	for i, branch := range branches {
		wg.Add(1)
		go func(i int, branch *Context) {
			defer wg.Done()
			resp, err := a.def.Request(ctx, client, branch)
			results[i] = BranchResult{
				Index:    i,
				Element:  branchElement(a.def.FanOut, branch),
				Response: resp,
				Err:      err,
			}
		}(i, branch)
	}
	wg.Wait()

	return results, nil
}

// applySubscriptionMapping transforms the inbound event into the action
// payload. The payload schema applies to its output.
func (a *Action) applySubscriptionMapping(ec *Context) (*Context, error) {
	if ec.Mapping == nil {
		return ec, nil
	}
	mapped, err := a.evaluator.Evaluate(ec.Mapping, ec.Payload)
	if err != nil {
		return nil, fmt.Errorf("action %q: mapping: %w", a.def.Slug, err)
	}
	obj, ok := mapped.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("action %q: mapping must produce an object, got %s", a.def.Slug, mapping.RealTypeOf(mapped))
	}
	return ec.withPayload(obj), nil
}

// applyFieldMappings runs each declared mapField step after payload
// validation, each producing a fresh payload value.
func (a *Action) applyFieldMappings(ec *Context) (*Context, error) {
	for _, fm := range a.def.MapFields {
		value, err := a.evaluator.Evaluate(fm.Mapping, ec.Payload)
		if err != nil {
			return nil, fmt.Errorf("action %q: mapField %q: %w", a.def.Slug, fm.Field, err)
		}
		ec = ec.withPayload(setField(ec.Payload, fm.Field, value))
	}
	return ec, nil
}

// runCachedRequest resolves the declared lookup with at-most-one fresh
// computation per unexpired key. singleflight collapses concurrent first
// accesses to the same key; the TTL cache carries the value across
// invocations. Failed lookups are not cached and retry on the next call.
func (a *Action) runCachedRequest(ctx context.Context, client *requester.Client, ec *Context) (*Context, error) {
	cr := a.def.CachedReq
	key, err := cr.Key(ec)
	if err != nil {
		return nil, fmt.Errorf("action %q: cachedRequest key: %w", a.def.Slug, err)
	}

	value, err, _ := a.flight.Do(key, func() (any, error) {
		if cached, ok := a.cache.get(key); ok {
			return cached, nil
		}
		fresh, err := cr.Value(ctx, client, ec)
		if err != nil {
			return nil, err
		}
		a.cache.set(key, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, fmt.Errorf("action %q: cachedRequest %q: %w", a.def.Slug, cr.As, err)
	}
	return ec.withBinding(cr.As, value), nil
}

// branchContexts expands the fan-out declaration into per-branch contexts.
// Without fan-out there is exactly one branch: the context itself.
func (a *Action) branchContexts(ec *Context) ([]*Context, error) {
	if a.def.FanOut == nil {
		return []*Context{ec}, nil
	}
	source, ok := ec.Lookup(a.def.FanOut.On)
	if !ok {
		return nil, fmt.Errorf("action %q: fanOut source %q not found", a.def.Slug, a.def.FanOut.On)
	}
	elements, ok := source.([]any)
	if !ok {
		return nil, fmt.Errorf("action %q: fanOut source %q must be an array, got %s", a.def.Slug, a.def.FanOut.On, mapping.RealTypeOf(source))
	}
	branches := make([]*Context, len(elements))
	for i, element := range elements {
		branches[i] = ec.withBinding(a.def.FanOut.As, element)
	}
	return branches, nil
}

func branchElement(fo *FanOutConfig, branch *Context) any {
	if fo == nil {
		return nil
	}
	v, _ := branch.Binding(fo.As)
	return v
}

// Autocomplete invokes the named resolver out-of-band. It is not part of the
// event execution path.
func (a *Action) Autocomplete(ctx context.Context, client *requester.Client, ec *Context, field string) (*AutocompleteResponse, error) {
	resolver, ok := a.def.Autocomplete[field]
	if !ok {
		return nil, fmt.Errorf("action %q: no autocomplete resolver for field %q", a.def.Slug, field)
	}
	if ec.bindings == nil {
		copied := *ec
		copied.bindings = map[string]any{}
		ec = &copied
	}
	return resolver(ctx, client, ec)
}

// setField returns a copy of doc with the value at path replaced. Every map
// along the path is copied, never mutated; missing intermediates are created.
func setField(doc map[string]any, path string, value any) map[string]any {
	segments := mapping.SplitPath(path)
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	cur := out
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
		} else {
			copied := make(map[string]any, len(next))
			for k, v := range next {
				copied[k] = v
			}
			next = copied
		}
		cur[seg] = next
		cur = next
	}
	last := segments[len(segments)-1]
	if mapping.IsUndefined(value) {
		delete(cur, last)
	} else {
		cur[last] = value
	}
	return out
}
