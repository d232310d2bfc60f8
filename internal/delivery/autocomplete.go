package delivery

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mixpanel/action-destinations-sub001/internal/action"
	httperr "github.com/mixpanel/action-destinations-sub001/internal/core/errors"
)

// autocompleteRequest carries the configuration-UI state an autocomplete
// resolver may need: the settings entered so far, the draft payload, and the
// pagination cursor from the previous page.
type autocompleteRequest struct {
	Settings map[string]any `json:"settings"`
	Payload  map[string]any `json:"payload"`
	Page     string         `json:"page"`
}

// AutocompleteHandler serves dynamic value lists for configuration UIs. It is
// out-of-band: no subscription matching, no mapping, no delivery log.
func (s *Service) AutocompleteHandler(c *gin.Context) {
	dest, derr := s.lookupDestination(c.Param("id"))
	if derr != nil {
		writeError(c, derr)
		return
	}

	act, ok := dest.Action(c.Param("slug"))
	if !ok {
		writeError(c, &deliveryError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpConfigurationError,
			message:    "Unknown action",
			details:    map[string]interface{}{"action": c.Param("slug")},
		})
		return
	}

	var req autocompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	resp, err := act.Autocomplete(c.Request.Context(), dest.Client(), &action.Context{
		Payload:  req.Payload,
		Settings: req.Settings,
		Page:     req.Page,
	}, c.Param("field"))
	if err != nil {
		slog.Warn("Autocomplete failed",
			"destination", dest.ID,
			"action", act.Slug(),
			"field", c.Param("field"),
			"error", err)
		writeError(c, &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpConfigurationError,
			message:    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
