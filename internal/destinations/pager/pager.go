// Package pager implements an example paging/alerting destination that
// exercises the full action pipeline: settings and payload schemas, field
// mappings, a cached team lookup, fan-out over notification channels, and a
// channel autocomplete for configuration UIs.
package pager

import (
	"github.com/mixpanel/action-destinations-sub001/internal/action"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
	"github.com/mixpanel/action-destinations-sub001/internal/requester"
	"github.com/mixpanel/action-destinations-sub001/internal/schema"
)

// DefaultBaseURL is the partner API root. Overridable per destination
// instance for testing.
const DefaultBaseURL = "https://api.pager.example.com"

func intPtr(i int) *int { return &i }

var settingsSpec = &schema.Spec{
	Name: "pager settings",
	Fields: map[string]*schema.Field{
		"apiKey": {Type: "string", Required: true, MinLength: intPtr(1)},
		"team":   {Type: "string", Required: true, MinLength: intPtr(1)},
	},
}

var alertPayloadSpec = &schema.Spec{
	Name: "pager alert",
	Fields: map[string]*schema.Field{
		"title": {Type: "string", Required: true, MinLength: intPtr(1), MaxLength: intPtr(512)},
		"severity": {
			Type: "string",
			Enum: []any{"info", "warning", "critical"},
		},
		// occurredAt is undeclared on purpose: clients send any parseable
		// timestamp and the mapField below normalizes it after validation.
		"channels": {
			Type:     "array",
			Required: true,
			Items:    &schema.Field{Type: "string", MinLength: intPtr(1)},
		},
		"details": {Type: "object"},
	},
}

// New builds the pager destination against the default partner API.
func New(evaluator *mapping.Evaluator) (*destination.Destination, error) {
	return NewWithBaseURL(evaluator, DefaultBaseURL)
}

// NewWithBaseURL builds the pager destination against a specific API root.
func NewWithBaseURL(evaluator *mapping.Evaluator, baseURL string) (*destination.Destination, error) {
	alert, err := action.New(action.Definition{
		Slug:     "alert",
		Settings: settingsSpec,
		Payload:  alertPayloadSpec,
		MapFields: []action.FieldMap{
			// Partner requires RFC3339; clients send anything parseable.
			{Field: "occurredAt", Mapping: map[string]any{
				"@timestamp": map[string]any{
					"timestamp": map[string]any{"@field": "occurredAt"},
					"format":    "json",
				},
			}},
		},
		CachedReq: &action.CachedRequestConfig{
			TTL:   teamCacheTTL,
			Key:   teamCacheKey,
			Value: lookupTeam,
			As:    "team",
		},
		FanOut: &action.FanOutConfig{
			On: "payload.channels",
			As: "channel",
		},
		Autocomplete: map[string]action.AutocompleteFunc{
			"channels": listChannels,
		},
		Request: createAlert,
	}, evaluator)
	if err != nil {
		return nil, err
	}

	return destination.New(destination.Config{
		ID:      "pager",
		Name:    "Pager",
		Actions: []*action.Action{alert},
		Extensions: []requester.Extension{
			requester.BaseURL(baseURL),
			requester.Header("User-Agent", "actiond-pager/1.0"),
		},
	})
}
