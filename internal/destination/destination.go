// Package destination models one partner destination: its actions, its
// request extensions, and the subscription rules that route events to
// actions.
package destination

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mixpanel/action-destinations-sub001/internal/action"
	"github.com/mixpanel/action-destinations-sub001/internal/requester"
)

// Subscription binds an event predicate to an action with its mapping and
// settings overrides. Subscriptions are declared statically and evaluated
// once per inbound event.
type Subscription struct {
	Name          string         `yaml:"name" json:"name"`
	Subscribe     map[string]any `yaml:"subscribe" json:"subscribe"`
	PartnerAction string         `yaml:"partner_action" json:"partner_action"`
	Mapping       map[string]any `yaml:"mapping" json:"mapping,omitempty"`
	Settings      map[string]any `yaml:"settings" json:"settings,omitempty"`
}

// Destination owns a set of named actions plus the subscriptions that
// dispatch events to them.
type Destination struct {
	ID         string
	Name       string
	Extensions []requester.Extension

	actions       map[string]*action.Action
	subscriptions []Subscription
	matcher       Matcher
	client        *requester.Client
}

// Config declares a destination.
type Config struct {
	ID         string
	Name       string
	Extensions []requester.Extension
	Actions    []*action.Action
}

// New builds a destination from its config. The request client is composed
// once from the declared extensions.
func New(cfg Config) (*Destination, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("destination requires an id")
	}
	actions := make(map[string]*action.Action, len(cfg.Actions))
	for _, act := range cfg.Actions {
		if _, exists := actions[act.Slug()]; exists {
			return nil, fmt.Errorf("destination %q: duplicate action slug %q", cfg.ID, act.Slug())
		}
		actions[act.Slug()] = act
	}
	return &Destination{
		ID:         cfg.ID,
		Name:       cfg.Name,
		Extensions: cfg.Extensions,
		actions:    actions,
		matcher:    DefaultMatcher,
		client:     requester.New(cfg.Extensions...),
	}, nil
}

// SetSubscriptions installs the destination's subscription rules, replacing
// any prior set. Unknown action slugs are rejected here so misconfiguration
// surfaces at load time, not per event.
func (d *Destination) SetSubscriptions(subs []Subscription) error {
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if sub.Name == "" {
			return fmt.Errorf("destination %q: subscription requires a name", d.ID)
		}
		if seen[sub.Name] {
			return fmt.Errorf("destination %q: duplicate subscription %q", d.ID, sub.Name)
		}
		seen[sub.Name] = true
		if _, ok := d.actions[sub.PartnerAction]; !ok {
			return &ConfigurationError{
				Destination: d.ID,
				Message:     fmt.Sprintf("subscription %q references unknown action %q", sub.Name, sub.PartnerAction),
			}
		}
	}
	d.subscriptions = subs
	return nil
}

// Subscriptions returns the installed subscription rules.
func (d *Destination) Subscriptions() []Subscription { return d.subscriptions }

// Action returns the action registered under slug.
func (d *Destination) Action(slug string) (*action.Action, bool) {
	act, ok := d.actions[slug]
	return act, ok
}

// Client returns the destination's pre-extended request client.
func (d *Destination) Client() *requester.Client { return d.client }

// Outcome statuses for one subscription's settled result.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusNotSubscribed = "not_subscribed"
)

// BranchOutcome is the settled result of one fan-out branch, shaped for the
// API response.
type BranchOutcome struct {
	Index      int    `json:"index"`
	Element    any    `json:"element,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SettledResult is one subscription's outcome for one event. Partial failure
// is a normal response shape: the dispatcher never converts a per-
// subscription failure into a dispatch failure.
type SettledResult struct {
	Subscription string          `json:"subscription"`
	Action       string          `json:"action,omitempty"`
	Status       string          `json:"status"`
	Branches     []BranchOutcome `json:"branches,omitempty"`
	Error        string          `json:"error,omitempty"`
	Details      map[string]any  `json:"details,omitempty"`
}

// Detailer matches error types carrying structured detail for API responses.
type Detailer interface {
	Details() map[string]any
}

// OnEvent dispatches one event against every declared subscription. Matching
// subscriptions run concurrently; outcomes settle into declaration order.
// It returns an error only for structural misconfiguration; business-level
// failures are embedded in the result list.
func (d *Destination) OnEvent(ctx context.Context, event, settings map[string]any) ([]SettledResult, error) {
	type dispatch struct {
		index int
		sub   Subscription
		act   *action.Action
	}

	results := make([]SettledResult, len(d.subscriptions))
	var matched []dispatch

	// Resolve actions synchronously first: an unknown slug is fatal and must
	// preempt all execution.
	for i, sub := range d.subscriptions {
		if !d.matcher.Matches(sub.Subscribe, event) {
			results[i] = SettledResult{Subscription: sub.Name, Status: StatusNotSubscribed}
			continue
		}
		act, ok := d.actions[sub.PartnerAction]
		if !ok {
			return nil, &ConfigurationError{
				Destination: d.ID,
				Message:     fmt.Sprintf("subscription %q references unknown action %q", sub.Name, sub.PartnerAction),
			}
		}
		matched = append(matched, dispatch{index: i, sub: sub, act: act})
	}

	var wg sync.WaitGroup
	for _, dp := range matched {
		wg.Add(1)
		go func(dp dispatch) {
			defer wg.Done()
			results[dp.index] = d.runSubscription(ctx, dp.sub, dp.act, event, settings)
		}(dp)
	}
	wg.Wait()

	return results, nil
}

// runSubscription executes one matched subscription and settles its outcome.
func (d *Destination) runSubscription(ctx context.Context, sub Subscription, act *action.Action, event, settings map[string]any) SettledResult {
	result := SettledResult{
		Subscription: sub.Name,
		Action:       sub.PartnerAction,
	}

	var mapping any
	if sub.Mapping != nil {
		mapping = map[string]any(sub.Mapping)
	}

	branches, err := act.Execute(ctx, d.client, &action.Context{
		Payload:  event,
		Settings: MergeSettings(settings, sub.Settings),
		Mapping:  mapping,
	})
	if err != nil {
		slog.Warn("Subscription execution failed",
			"destination", d.ID,
			"subscription", sub.Name,
			"action", sub.PartnerAction,
			"error", err)
		result.Status = StatusError
		result.Error = err.Error()
		if det, ok := err.(Detailer); ok {
			result.Details = det.Details()
		}
		return result
	}

	result.Status = StatusSuccess
	for _, br := range branches {
		outcome := BranchOutcome{Index: br.Index, Element: br.Element}
		if br.Response != nil {
			outcome.StatusCode = br.Response.StatusCode
		}
		if br.Err != nil {
			outcome.Error = br.Err.Error()
			result.Status = StatusError
		}
		result.Branches = append(result.Branches, outcome)
	}
	return result
}

// MergeSettings overlays subscription settings on destination settings;
// subscription keys win on collision. Neither input is mutated.
func MergeSettings(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// ConfigurationError reports structural misconfiguration: unknown action
// slugs, malformed subscription files. It is fatal and propagates out of
// dispatch, unlike business-level per-subscription failures.
type ConfigurationError struct {
	Destination string
	Message     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("destination %q: %s", e.Destination, e.Message)
}
