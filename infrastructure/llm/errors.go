package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// Common errors returned by the executor and providers.
var (
	// ErrEmptyResponse indicates that the provider returned an empty body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates that the provider's response contained no candidates.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType represents the category of an error returned by the executor or
// a provider. It decides retryability and the domain sentinel the error
// matches under errors.Is.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an error of an undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeInvalidRequest indicates a malformed URL or unsupported method.
	ErrorTypeInvalidRequest
	// ErrorTypeMissingCredentials indicates that no API key is configured.
	ErrorTypeMissingCredentials
	// ErrorTypeAuthentication indicates a problem with authentication or authorization (e.g., invalid API key).
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates that a rate limit has been exceeded.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest indicates a malformed request or invalid parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates that a requested resource (e.g., a model) could not be found.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a problem on the provider's end.
	ErrorTypeServerError
	// ErrorTypeUnexpectedStatus indicates a status outside 2xx, 4xx and 5xx.
	ErrorTypeUnexpectedStatus
	// ErrorTypeNetwork indicates a client-side network problem.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates that the request timed out.
	ErrorTypeTimeout
	// ErrorTypeMalformedResponse indicates a 2xx reply whose shape is not the
	// provider's documented response format.
	ErrorTypeMalformedResponse
)

// ProviderError represents a structured error from the executor or a provider.
// It normalizes provider-specific errors into a common format,
// including a classified error type and relevant metadata.
type ProviderError struct {
	// Type classifies the error into a standard category.
	Type ErrorType
	// Provider identifies the provider that produced the error.
	Provider string
	// StatusCode holds the last HTTP status code, 0 if the network was never reached.
	StatusCode int
	// Message contains the error message, including the provider's error body for 4xx replies.
	Message string
	// WrappedError holds the original underlying error, allowing for error chaining.
	WrappedError error
}

// Error returns a string representation of the ProviderError,
// satisfying the standard error interface.
func (e *ProviderError) Error() string {
	base := "request error"
	if e.Provider != "" {
		base = fmt.Sprintf("%s error", e.Provider)
	}
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	typeStr := e.typeString()
	if typeStr != "" {
		base += fmt.Sprintf(" [%s]", typeStr)
	}

	if e.Message != "" {
		base += ": " + e.Message
	}

	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}

	return base
}

// Unwrap returns the underlying wrapped error, allowing for error inspection
// with functions like errors.Is and errors.As.
func (e *ProviderError) Unwrap() error {
	return e.WrappedError
}

// Is maps the error type onto the domain taxonomy so that callers can test
// errors.Is(err, domain.ErrTransientNetwork) and friends.
func (e *ProviderError) Is(target error) bool {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return target == domain.ErrInvalidRequest
	case ErrorTypeMissingCredentials:
		return target == domain.ErrMissingCredentials
	case ErrorTypeAuthentication, ErrorTypeBadRequest, ErrorTypeNotFound:
		return target == domain.ErrClientError
	case ErrorTypeMalformedResponse:
		return target == domain.ErrMalformedAIOutput
	}
	if e.IsRetryable() {
		return target == domain.ErrTransientNetwork
	}
	return false
}

// IsRetryable determines whether a request that failed with this error
// should be retried. It returns true for transient issues like rate limits,
// server-side errors and unexpected status codes.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeUnexpectedStatus,
		ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// typeString returns a human-readable error type.
func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeMissingCredentials:
		return "missing_credentials"
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeUnexpectedStatus:
		return "unexpected_status"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeMalformedResponse:
		return "malformed_response"
	default:
		return ""
	}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// ErrorClassifier standardizes transport outcomes into ProviderError instances.
type ErrorClassifier struct {
	// Provider is the name attached to produced errors.
	Provider string
}

// ClassifyHTTPError creates a ProviderError for a non-2xx status. detail is
// the response body or a message decoded from it.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, detail string, err error) *ProviderError {
	var errType ErrorType

	switch {
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
	case statusCode == 429:
		errType = ErrorTypeRateLimit
	case statusCode == 404:
		errType = ErrorTypeNotFound
	case statusCode >= 400 && statusCode < 500:
		errType = ErrorTypeBadRequest
	case statusCode >= 500 && statusCode < 600:
		errType = ErrorTypeServerError
	default:
		errType = ErrorTypeUnexpectedStatus
	}

	return NewProviderError(ec.Provider, errType, statusCode, statusMessage(statusCode, detail), err)
}

// ClassifyContextError creates a ProviderError by classifying a context-related error,
// such as context.DeadlineExceeded or context.Canceled.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "connection failed", err)
	}
}

func statusMessage(statusCode int, detail string) string {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return fmt.Sprintf("client error (%d): %s", statusCode, detail)
	case statusCode >= 500 && statusCode < 600:
		return fmt.Sprintf("server error (%d): %s", statusCode, detail)
	default:
		return fmt.Sprintf("unexpected HTTP response code: %d", statusCode)
	}
}
