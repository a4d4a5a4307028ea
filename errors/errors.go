// Package errors provides the error handling system for the luagen gateway.
// It defines the error taxonomy returned to clients, JSON response
// formatting, request ID tracking and integrated logging with zap.
//
// Every error body carries an "error" field with a human-readable message.
// Errors raised after a model was selected also carry a "model" field so the
// client can tell which upstream model failed.
//
// Basic usage:
//
//	// Simple error response
//	errors.Error(w, "Something went wrong", http.StatusInternalServerError)
//
//	// Type-specific error
//	errors.ErrorWithType(w, "Missing prompt", errors.ValidationError, http.StatusBadRequest)
//
// For request handlers, prefer the constructors in types.go:
//
//	errors.WriteError(w, errors.NewValidationError(requestID, "Missing prompt", map[string]interface{}{
//	    "field": "prompt",
//	}))
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// A nil logger is ignored.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType represents the category of a failure. Each type maps to one
// HTTP status family and is exposed to clients in the "type" field.
type ErrorType string

const (
	// MethodNotAllowedError is returned for any non-POST request to the generate route
	MethodNotAllowedError ErrorType = "method_not_allowed"

	// ConfigError represents server-side configuration problems such as a missing credential
	ConfigError ErrorType = "config_error"

	// ValidationError represents request body validation failures
	ValidationError ErrorType = "validation_error"

	// CatalogError represents failures while listing the provider's models
	CatalogError ErrorType = "catalog_error"

	// UpstreamError represents a non-success response from the completion endpoint
	UpstreamError ErrorType = "upstream_error"

	// EmptyContentError represents a successful completion without usable text
	EmptyContentError ErrorType = "empty_content"

	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"

	// NotFoundError represents unknown routes
	NotFoundError ErrorType = "not_found"
)

// APIError is the error type written to clients. It implements the error
// interface and keeps the underlying cause for logging.
type APIError struct {
	// Message is the human-readable description, serialized as "error"
	Message string `json:"error"`

	// Model is the selected upstream model, when one was chosen
	Model string `json:"model,omitempty"`

	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id,omitempty"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.err
}

// Is matches on error type only, so errors.Is(err, &APIError{Type: ValidationError})
// works regardless of message or request ID.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithModel records the model that was selected when the error occurred.
func (e *APIError) WithModel(model string) *APIError {
	e.Model = model
	return e
}

// WriteError writes an APIError as a JSON response with its status code.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Error("failed to encode error response", zap.Error(encErr))
	}
}

// Error is a drop-in replacement for http.Error that writes an InternalError.
// The request ID is taken from the response headers if the RequestID
// middleware already set it.
func Error(w http.ResponseWriter, message string, code int) {
	ErrorWithType(w, message, InternalError, code)
}

// ErrorWithType is like Error but allows specifying the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
