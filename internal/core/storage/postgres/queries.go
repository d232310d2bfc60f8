package postgres

// SQL queries for the delivery audit log

const (
	// querySaveDelivery inserts one settled outcome.
	// RETURNING retrieves the auto-generated seq for cursor pagination.
	querySaveDelivery = `
		INSERT INTO deliveries (
			id, destination_id, subscription, action,
			event_type, event_name, message_id, status, error, delivered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`

	// queryRetrieveDeliveriesAfterCursor fetches deliveries after a cursor
	// (seq) in strict total order. An empty destination filter matches all
	// destinations.
	queryRetrieveDeliveriesAfterCursor = `
		SELECT
			id, destination_id, subscription, action,
			event_type, event_name, message_id, status, error, delivered_at, seq
		FROM deliveries
		WHERE seq > $1
		  AND ($2 = '' OR destination_id = $2)
		ORDER BY seq ASC
		LIMIT $3
	`
)
