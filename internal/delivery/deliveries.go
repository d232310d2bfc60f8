package delivery

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/mixpanel/action-destinations-sub001/internal/core/errors"
)

const (
	defaultDeliveryPageSize = 100
	maxDeliveryPageSize     = 1000
)

// deliveryRow is the API shape of one audit record. The database sequence
// stays internal; the opaque cursor in the response is the only pagination
// handle.
type deliveryRow struct {
	ID           string    `json:"id"`
	Destination  string    `json:"destination"`
	Subscription string    `json:"subscription"`
	Action       string    `json:"action,omitempty"`
	EventType    string    `json:"event_type"`
	EventName    string    `json:"event_name,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at"`
}

// ListDeliveriesHandler pages through the delivery audit log in insertion
// order. Query params: cursor (from a previous page), destination (filter),
// limit.
func (s *Service) ListDeliveriesHandler(c *gin.Context) {
	cursor := int64(0)
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(c, &deliveryError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpValidationError,
				message:    "cursor must be a non-negative integer",
			})
			return
		}
		cursor = parsed
	}

	limit := defaultDeliveryPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, &deliveryError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpValidationError,
				message:    "limit must be a positive integer",
			})
			return
		}
		if parsed > maxDeliveryPageSize {
			parsed = maxDeliveryPageSize
		}
		limit = parsed
	}

	rows, err := s.store.RetrieveDeliveriesAfterCursor(c.Request.Context(), cursor, c.Query("destination"), limit)
	if err != nil {
		slog.Error("Failed to retrieve deliveries", "error", err)
		writeError(c, &deliveryError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to retrieve deliveries",
		})
		return
	}

	out := make([]deliveryRow, len(rows))
	for i, d := range rows {
		out[i] = deliveryRow{
			ID:           d.ID,
			Destination:  d.DestinationID,
			Subscription: d.Subscription,
			Action:       d.Action,
			EventType:    d.EventType,
			EventName:    d.EventName,
			MessageID:    d.MessageID,
			Status:       d.Status,
			Error:        d.Error,
			DeliveredAt:  d.DeliveredAt,
		}
	}

	resp := gin.H{"deliveries": out}
	if len(rows) == limit && limit > 0 {
		resp["next_cursor"] = strconv.FormatInt(rows[len(rows)-1].Seq, 10)
	}
	c.JSON(http.StatusOK, resp)
}
