// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/fairlens/backend/internal/upstream"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewUpstreamError translates an upstream client failure into an API error.
// Timeouts map to 504, open circuits to 503, and upstream status codes pass
// through with their detail text.
func NewUpstreamError(service string, err error) *APIError {
	if upstream.IsTimeout(err) {
		return &APIError{
			Status:  http.StatusGatewayTimeout,
			Code:    "UPSTREAM_TIMEOUT",
			Message: fmt.Sprintf("%s service did not respond in time", service),
		}
	}
	if upstream.IsUnavailable(err) {
		return &APIError{
			Status:  http.StatusServiceUnavailable,
			Code:    "SERVICE_UNAVAILABLE",
			Message: fmt.Sprintf("%s service is unavailable", service),
		}
	}

	var upErr *upstream.APIError
	if errors.As(err, &upErr) {
		return &APIError{
			Status:  http.StatusBadGateway,
			Code:    "UPSTREAM_ERROR",
			Message: fmt.Sprintf("%s service rejected the request", service),
			Details: upErr.Detail,
		}
	}

	return &APIError{
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_ERROR",
		Message: fmt.Sprintf("%s service request failed", service),
		Details: err.Error(),
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
