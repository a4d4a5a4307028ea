package errors

import (
	"fmt"
	"net/http"
)

// NewError creates a new APIError with full control over its fields.
// For most cases, use one of the specialized constructors below.
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *APIError {
	return &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewMethodNotAllowedError reports a request made with an unsupported HTTP method.
func NewMethodNotAllowedError(requestID, method string) *APIError {
	return &APIError{
		Type:      MethodNotAllowedError,
		Message:   "Method not allowed",
		Code:      http.StatusMethodNotAllowed,
		RequestID: requestID,
		Details: map[string]interface{}{
			"method":          method,
			"allowed_methods": []string{http.MethodPost},
		},
	}
}

// NewConfigError reports a server misconfiguration. It is a server error,
// not a client error.
func NewConfigError(requestID, message string) *APIError {
	return &APIError{
		Type:      ConfigError,
		Message:   message,
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
	}
}

// NewValidationError creates a validation error with appropriate defaults.
// Use this for request body failures, such as:
//   - Malformed JSON
//   - Missing or blank required fields
//   - Unknown modes
//
// Example:
//
//	err := NewValidationError("req_123", "Missing prompt", map[string]interface{}{
//	    "field": "prompt",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *APIError {
	return &APIError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewCatalogError reports a failure to list provider models. status is the
// upstream HTTP status; zero means no response was received and maps to 500.
func NewCatalogError(requestID, message string, status int, err error) *APIError {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return &APIError{
		Type:      CatalogError,
		Message:   message,
		Code:      status,
		RequestID: requestID,
		err:       err,
	}
}

// NewUpstreamError propagates a non-success completion status to the client.
func NewUpstreamError(requestID, model, excerpt string, status int, err error) *APIError {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return &APIError{
		Type:      UpstreamError,
		Message:   excerpt,
		Model:     model,
		Code:      status,
		RequestID: requestID,
		err:       err,
	}
}

// NewEmptyContentError reports a completion that succeeded without usable text.
func NewEmptyContentError(requestID, model string, err error) *APIError {
	return &APIError{
		Type:      EmptyContentError,
		Message:   "Empty content from Groq",
		Model:     model,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError wraps any unexpected failure. The cause is stringified
// into the message so the client sees what went wrong.
func NewInternalError(requestID string, err error) *APIError {
	message := "An internal error occurred"
	if err != nil {
		message = fmt.Sprintf("Error: %v", err)
	}
	return &APIError{
		Type:      InternalError,
		Message:   message,
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
