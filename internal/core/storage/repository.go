package storage

import (
	"context"
	"time"
)

// Delivery is one settled subscription outcome, recorded for audit. One
// inbound event produces one row per evaluated subscription.
type Delivery struct {
	// ID is assigned by the service at record time.
	ID string

	// DestinationID names the destination the event was dispatched to.
	DestinationID string

	// Subscription and Action name the rule and the partner action it ran.
	Subscription string
	Action       string

	// EventType and EventName describe the inbound envelope.
	EventType string
	EventName string

	// MessageID is the client-assigned event id, when present.
	MessageID string

	// Status is the settled outcome: success, error or not_subscribed.
	Status string

	// Error carries the failure message for error outcomes.
	Error string

	// DeliveredAt is when the outcome settled (server clock).
	DeliveredAt time.Time

	// Seq is a monotonic sequence assigned by the database. Not exposed in
	// the public API; used for pagination.
	Seq int64
}

// DeliveryStore records settled delivery outcomes.
type DeliveryStore interface {
	SaveDelivery(ctx context.Context, d *Delivery) error

	// RetrieveDeliveriesAfterCursor fetches deliveries after a cursor (seq)
	// in strict total order, optionally filtered by destination id.
	// cursor=0 means "from the beginning".
	RetrieveDeliveriesAfterCursor(ctx context.Context, cursor int64, destinationID string, limit int) ([]*Delivery, error)
}

// NoopStore discards delivery records. Used when no database is configured;
// dispatch works identically, only the audit trail is absent.
type NoopStore struct{}

func (NoopStore) SaveDelivery(context.Context, *Delivery) error { return nil }

func (NoopStore) RetrieveDeliveriesAfterCursor(context.Context, int64, string, int) ([]*Delivery, error) {
	return nil, nil
}
