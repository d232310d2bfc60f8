// Package webhook implements the generic HTTP destination: every subscribed
// event is posted as JSON to a user-configured URL.
package webhook

import (
	"context"
	"fmt"

	"github.com/mixpanel/action-destinations-sub001/internal/action"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
	"github.com/mixpanel/action-destinations-sub001/internal/requester"
	"github.com/mixpanel/action-destinations-sub001/internal/schema"
)

var settingsSpec = &schema.Spec{
	Name: "webhook settings",
	Fields: map[string]*schema.Field{
		"url": {
			Type:     "string",
			Required: true,
			Pattern:  `^https?://`,
		},
		"sharedSecret": {Type: "string"},
	},
}

// New builds the webhook destination.
func New(evaluator *mapping.Evaluator) (*destination.Destination, error) {
	send, err := action.New(action.Definition{
		Slug:     "send",
		Settings: settingsSpec,
		Request:  sendRequest,
	}, evaluator)
	if err != nil {
		return nil, err
	}

	return destination.New(destination.Config{
		ID:      "webhook",
		Name:    "Webhook",
		Actions: []*action.Action{send},
		Extensions: []requester.Extension{
			requester.Header("User-Agent", "actiond-webhook/1.0"),
		},
	})
}

func sendRequest(ctx context.Context, client *requester.Client, ec *action.Context) (*requester.Response, error) {
	url, _ := ec.Settings["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("webhook: url setting is required")
	}

	opts := &requester.RequestOptions{JSON: ec.Payload}
	if secret, ok := ec.Settings["sharedSecret"].(string); ok && secret != "" {
		opts.Headers = map[string]string{"X-Shared-Secret": secret}
	}

	return client.Post(ctx, url, opts)
}
