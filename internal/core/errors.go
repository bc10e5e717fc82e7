package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeUnknownProvider indicates a provider name absent from the registry
	ErrorTypeUnknownProvider ErrorType = "unknown_provider_error"
	// ErrorTypeConfiguration indicates a wrapper could not be constructed from its config
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeValidation indicates input rejected by strict security checks
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeProvider indicates an upstream provider error (5xx)
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates a rate limit error (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// Sentinels for errors.Is. They match any *Error of the same type.
var (
	ErrUnknownProvider = &Error{Type: ErrorTypeUnknownProvider}
	ErrConfiguration   = &Error{Type: ErrorTypeConfiguration}
	ErrValidation      = &Error{Type: ErrorTypeValidation}
)

// Error is the error type produced by the wrapper itself and by the shared
// HTTP client. Errors returned by vendor SDKs are passed through untouched.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Type == e.Type
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest, ErrorTypeValidation, ErrorTypeUnknownProvider:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *Error) ToJSON() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewUnknownProviderError reports a lookup miss in the registry.
func NewUnknownProviderError(name string, available []string) *Error {
	return &Error{
		Type:    ErrorTypeUnknownProvider,
		Message: fmt.Sprintf("unknown provider %q (available: %v)", name, available),
	}
}

// NewConfigurationError creates a construction-time error.
func NewConfigurationError(provider, message string, err error) *Error {
	return &Error{
		Type:     ErrorTypeConfiguration,
		Message:  message,
		Provider: provider,
		Err:      err,
	}
}

// NewValidationError creates an input rejection error.
func NewValidationError(provider, message string) *Error {
	return &Error{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Provider:   provider,
	}
}

// NewProviderError creates a new provider error (upstream 5xx)
func NewProviderError(provider string, statusCode int, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(provider string, message string) *Error {
	return &Error{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *Error {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(provider string, message string) *Error {
	return &Error{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Provider:   provider,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(provider string, message string) *Error {
	return &Error{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Provider:   provider,
	}
}

// ParseProviderError turns a non-200 vendor response into an *Error.
// It understands {"error":{"message":...}}, {"error":"..."} and
// {"message":...} bodies and falls back to the raw body.
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *Error {
	message := string(body)
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.String() != "" {
				message = r.String()
				break
			}
		}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(provider, message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(provider, message)
	case statusCode == http.StatusNotFound:
		return NewNotFoundError(provider, message)
	case statusCode >= 400 && statusCode < 500:
		err := NewInvalidRequestErrorWithStatus(statusCode, message, originalErr)
		err.Provider = provider
		return err
	default:
		return NewProviderError(provider, http.StatusBadGateway, message, originalErr)
	}
}

// TypeOf returns a short classification for logs and metrics: the
// ErrorType of an *Error in the chain, "canceled"/"timeout" for context
// errors, otherwise the dynamic type name.
func TypeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Type)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return fmt.Sprintf("%T", err)
}
