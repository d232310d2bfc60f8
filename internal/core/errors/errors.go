package errors

const (
	HttpInternalError            = "internal_error"
	HttpInvalidJsonError         = "invalid_json"
	HttpDestinationNotFoundError = "destination_not_implemented"
	HttpConfigurationError       = "configuration_error"
	HttpValidationError          = "validation_failed"
)

// ErrorResponse is the error response body for delivery API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
