package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewNoResourcesError reports that a provider returned zero connectable
// resources. This is an expected outcome (e.g. a user with no
// Business-verified pages), not a failure to be retried.
func NewNoResourcesError(provider string) *AppError {
	return New(ErrCodeNoResources, fmt.Sprintf("%s returned no connectable resources", provider)).
		WithContext("provider", provider).
		WithUserMessage("No connectable accounts were found for this provider")
}

// NewProviderError creates an error for an external provider call. Status
// codes 5xx, 429 and 408 mark the error retryable; other 4xx statuses are
// authentication/client errors that must not be retried.
func NewProviderError(provider, endpoint string, statusCode int, err error) *AppError {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout

	code := ErrCodeTransient
	if !retryable && statusCode >= 400 {
		code = ErrCodeAuthentication
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", provider)).
		WithContext("provider", provider).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = retryable

	if retryable {
		appErr.UserMessage = "The provider is temporarily unavailable, please try again"
	} else {
		appErr.UserMessage = fmt.Sprintf("The provider rejected the request (status %d)", statusCode)
	}
	return appErr
}

// NewNetworkError creates a retryable error for a failed transport-level call.
func NewNetworkError(provider, endpoint string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransient, fmt.Sprintf("%s request failed", provider)).
		WithContext("provider", provider).
		WithContext("endpoint", endpoint).
		WithUserMessage("The provider is temporarily unavailable, please try again")
}

// HTTPStatus maps an error to the HTTP status the API surface should return.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNoResources, ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTransient, ErrCodeTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
