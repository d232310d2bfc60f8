package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/mixpanel/action-destinations-sub001/internal/core/errors"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
)

// previewRequest is a dry-run: a candidate mapping plus a sample payload.
type previewRequest struct {
	Mapping any            `json:"mapping"`
	Payload map[string]any `json:"payload"`
}

// PreviewMappingHandler validates and evaluates a mapping against a sample
// payload without touching any destination. Configuration UIs use it to show
// the transformed payload while the user edits the mapping.
func (s *Service) PreviewMappingHandler(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	if err := mapping.Validate(s.directives.Registry(), req.Mapping); err != nil {
		derr := &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		}
		if multi, ok := err.(*mapping.MultiStructuralError); ok {
			derr.details = multi.Details()
		}
		writeError(c, derr)
		return
	}

	result, err := s.directives.Evaluate(req.Mapping, req.Payload)
	if err != nil {
		writeError(c, &deliveryError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		})
		return
	}

	if mapping.IsUndefined(result) {
		result = nil
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
