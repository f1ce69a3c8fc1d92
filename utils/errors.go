package utils

import (
	"errors"
	"net/http"
)

// ServiceError is the base type of the client-facing error taxonomy. Any
// error that is not a *ServiceError is treated as an internal fault and
// surfaced to the caller only as a generic 500.
type ServiceError struct {
	Status  int    // HTTP status to respond with
	Message string // client-facing message
}

func (e *ServiceError) Error() string {
	return e.Message
}

// ErrorBody is the JSON envelope every error response is serialized as.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewNotFound reports a missing collection or record (404).
func NewNotFound(message string) *ServiceError {
	return newServiceError(http.StatusNotFound, message, "Resource not found")
}

// NewRequestError reports malformed input, unsupported DSL syntax or a
// wrong token count (400).
func NewRequestError(message string) *ServiceError {
	return newServiceError(http.StatusBadRequest, message, "Request error")
}

// NewConflict reports a duplicate unique identity (409).
func NewConflict(message string) *ServiceError {
	return newServiceError(http.StatusConflict, message, "Resource conflict")
}

// NewAuthorizationError reports an unmet role requirement while
// unauthenticated (401).
func NewAuthorizationError(message string) *ServiceError {
	return newServiceError(http.StatusUnauthorized, message, "Unauthorized")
}

// NewCredentialError reports a bad token, ownership violation or failed
// rule (403).
func NewCredentialError(message string) *ServiceError {
	return newServiceError(http.StatusForbidden, message, "Forbidden")
}

func newServiceError(status int, message, fallback string) *ServiceError {
	if message == "" {
		message = fallback
	}
	return &ServiceError{Status: status, Message: message}
}

// AsServiceError unwraps err into a *ServiceError if it is one.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
