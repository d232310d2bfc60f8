package v1

import (
	"fmt"
	"time"
)

// Event is the analytics event envelope accepted on the wire. The typed
// fields cover the system attributes every event carries; the free-form maps
// carry the instrumented payload that subscriptions match on and mappings
// transform.
type Event struct {
	// Type classifies the event: "track", "identify", "page", "screen",
	// "group" or "alias".
	Type string `json:"type"`

	// Event is the event name. Required for track events, ignored otherwise.
	Event string `json:"event,omitempty"`

	// MessageID is the client-assigned unique id, used for tracing and
	// delivery logging.
	MessageID string `json:"messageId,omitempty"`

	// UserID and AnonymousID identify the subject. At least one must be set.
	UserID      string `json:"userId,omitempty"`
	AnonymousID string `json:"anonymousId,omitempty"`

	// Timestamp is when the event happened on the client's clock.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// ReceivedAt is when this service accepted the event. Set server-side.
	ReceivedAt time.Time `json:"receivedAt,omitempty"`

	// Properties carries track/page/screen payload data.
	Properties map[string]any `json:"properties,omitempty"`

	// Traits carries identify/group payload data.
	Traits map[string]any `json:"traits,omitempty"`

	// Context carries side-channel data stamped by the client library
	// (library version, ip, locale, campaign).
	Context map[string]any `json:"context,omitempty"`
}

var knownTypes = map[string]bool{
	"track":    true,
	"identify": true,
	"page":     true,
	"screen":   true,
	"group":    true,
	"alias":    true,
}

// Validate ensures the envelope has all required system attributes.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}

	if !knownTypes[e.Type] {
		return fmt.Errorf("unknown event type %q", e.Type)
	}

	if e.Type == "track" && e.Event == "" {
		return fmt.Errorf("event name is required for track events")
	}

	if e.UserID == "" && e.AnonymousID == "" {
		return fmt.Errorf("one of userId or anonymousId is required")
	}

	return nil
}
