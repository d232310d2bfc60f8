package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/mixpanel/action-destinations-sub001/internal/api/v1"
	httperr "github.com/mixpanel/action-destinations-sub001/internal/core/errors"
	"github.com/mixpanel/action-destinations-sub001/internal/core/storage"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
)

const (
	msgReadBodyFailed      = "Failed to read request body"
	msgInvalidJSON         = "Invalid JSON body"
	msgDestinationNotFound = "Destination not implemented"
)

// deliveryError carries the structured HTTP error shape from a helper back to
// the handler. Helpers return this instead of writing to gin.Context directly,
// keeping them decoupled from HTTP.
type deliveryError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *deliveryError) Error() string {
	return e.message
}

// deliveryRequest is the inbound body: the analytics event plus destination
// settings for this dispatch. "data" is accepted as an alias for "event" for
// clients migrating from the old field name.
type deliveryRequest struct {
	Event    json.RawMessage `json:"event"`
	Data     json.RawMessage `json:"data"`
	Settings map[string]any  `json:"settings"`
}

func (r *deliveryRequest) event() json.RawMessage {
	if len(r.Event) > 0 {
		return r.Event
	}
	return r.Data
}

// DeliverHandler handles HTTP POST requests dispatching one event to one
// destination.
func (s *Service) DeliverHandler(c *gin.Context) {
	dest, derr := s.lookupDestination(c.Param("id"))
	if derr != nil {
		writeError(c, derr)
		return
	}

	envelope, event, settings, payloadSize, derr := s.parseDelivery(c)
	if derr != nil {
		writeError(c, derr)
		return
	}

	slog.Info("Received Event",
		"destination", dest.ID,
		"event_type", envelope.Type,
		"event_name", envelope.Event,
		"message_id", envelope.MessageID,
		"payload_size", payloadSize)

	// The dispatch deadline bounds every partner request this event fans
	// out to.
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	results, err := dest.OnEvent(ctx, event, settings)
	if err != nil {
		var cfgErr *destination.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeError(c, &deliveryError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpConfigurationError,
				message:    cfgErr.Error(),
			})
			return
		}
		slog.Error("Dispatch failed", "destination", dest.ID, "error", err)
		writeError(c, &deliveryError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Dispatch failed",
		})
		return
	}

	s.recordDeliveries(c, dest.ID, envelope, results)

	c.JSON(http.StatusOK, gin.H{
		"destination": dest.ID,
		"results":     results,
	})
}

// ListDestinationsHandler returns the ids of every installed destination.
func (s *Service) ListDestinationsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"destinations": s.registry.IDs()})
}

func (s *Service) lookupDestination(id string) (*destination.Destination, *deliveryError) {
	dest, err := s.registry.Get(id)
	if err != nil {
		return nil, &deliveryError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpDestinationNotFoundError,
			message:    msgDestinationNotFound,
			details:    map[string]interface{}{"destination": id},
		}
	}
	return dest, nil
}

// parseDelivery reads the capped request body, binds the envelope for
// validation, and keeps the raw event map that subscriptions match on.
func (s *Service) parseDelivery(c *gin.Context) (*v1.Event, map[string]any, map[string]any, int, *deliveryError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, nil, nil, 0, &deliveryError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, nil, nil, len(bodyBytes), &deliveryError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	var req deliveryRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil || len(req.event()) == 0 {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, nil, nil, len(bodyBytes), &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	// Decode twice: the typed envelope for validation, the raw map for
	// matching and mapping.
	var envelope v1.Event
	var event map[string]any
	if err := json.Unmarshal(req.event(), &envelope); err != nil {
		return nil, nil, nil, len(bodyBytes), s.invalidEventError(err, len(bodyBytes))
	}
	if err := json.Unmarshal(req.event(), &event); err != nil {
		return nil, nil, nil, len(bodyBytes), s.invalidEventError(err, len(bodyBytes))
	}

	if err := envelope.Validate(); err != nil {
		slog.Warn("Envelope validation failed", "error", err, "message_id", envelope.MessageID)
		return nil, nil, nil, len(bodyBytes), &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		}
	}

	envelope.ReceivedAt = time.Now().UTC()
	return &envelope, event, req.Settings, len(bodyBytes), nil
}

func (s *Service) invalidEventError(err error, payloadSize int) *deliveryError {
	slog.Warn("Invalid event received", "error", err, "payload_size", payloadSize)
	return &deliveryError{
		statusCode: http.StatusBadRequest,
		errorType:  httperr.HttpInvalidJsonError,
		message:    msgInvalidJSON,
	}
}

// recordDeliveries writes one audit row per settled outcome. Audit failures
// are logged, never surfaced; the dispatch already happened.
func (s *Service) recordDeliveries(c *gin.Context, destinationID string, envelope *v1.Event, results []destination.SettledResult) {
	now := time.Now().UTC()
	for _, res := range results {
		d := &storage.Delivery{
			ID:            uuid.NewString(),
			DestinationID: destinationID,
			Subscription:  res.Subscription,
			Action:        res.Action,
			EventType:     envelope.Type,
			EventName:     envelope.Event,
			MessageID:     envelope.MessageID,
			Status:        res.Status,
			Error:         res.Error,
			DeliveredAt:   now,
		}
		if err := s.store.SaveDelivery(c.Request.Context(), d); err != nil {
			slog.Error("Failed to record delivery", "destination", destinationID, "subscription", res.Subscription, "error", err)
		}
	}
}

// writeError serializes a deliveryError as the JSON HTTP response.
func writeError(c *gin.Context, err *deliveryError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
