package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v75/github"
)

var (
	// ErrRateLimitExceeded is returned when the GitHub API rate limit is exceeded
	ErrRateLimitExceeded = errors.New("github rate limit exceeded")

	// ErrUnauthorized is returned when authentication fails
	ErrUnauthorized = errors.New("github authentication failed")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("github resource not found")

	// ErrForbidden is returned when access is forbidden
	ErrForbidden = errors.New("github access forbidden")

	// ErrUnprocessable is returned for validation failures, e.g. creating a
	// team whose name is already taken
	ErrUnprocessable = errors.New("github validation failed")

	// ErrServerError is returned when GitHub returns a server error
	ErrServerError = errors.New("github server error")

	// ErrBadRequest is returned when the request is malformed
	ErrBadRequest = errors.New("github bad request")
)

// APIError wraps GitHub API errors with additional context
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Method     string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github api error: %s (status: %d, method: %s, url: %s): %v",
			e.Message, e.StatusCode, e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("github api error: %s (status: %d, method: %s, url: %s)",
		e.Message, e.StatusCode, e.Method, e.URL)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// WrapError converts a GitHub API error into a structured APIError
func WrapError(err error, method, url string) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	var rlErr *github.RateLimitError
	if errors.As(err, &rlErr) {
		return &APIError{StatusCode: http.StatusForbidden, Message: rlErr.Message, URL: url, Method: method, Err: ErrRateLimitExceeded}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &APIError{StatusCode: http.StatusTooManyRequests, Message: abuseErr.Message, URL: url, Method: method, Err: ErrRateLimitExceeded}
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		mapped := mapErrorType(ghErr.Response.StatusCode, ghErr.Response.Header)
		if mapped == nil {
			mapped = err
		}
		return &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
			URL:        url,
			Method:     method,
			Err:        mapped,
		}
	}

	// Non-JSON responses, e.g. proxy HTML error pages
	statusCode := extractStatusCodeFromError(err)
	wrapped := &APIError{
		StatusCode: statusCode,
		Message:    err.Error(),
		URL:        url,
		Method:     method,
		Err:        err,
	}
	if mapped := mapErrorType(statusCode, nil); mapped != nil {
		wrapped.Err = mapped
	}
	return wrapped
}

// mapErrorType maps HTTP status codes to specific error types
func mapErrorType(statusCode int, header http.Header) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if header != nil && header.Get("X-RateLimit-Remaining") == "0" {
			return ErrRateLimitExceeded
		}
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrServerError
	default:
		return nil
	}
}

var statusPatterns = []struct {
	pattern string
	code    int
}{
	{"500 Internal Server Error", http.StatusInternalServerError},
	{"502 Bad Gateway", http.StatusBadGateway},
	{"503 Service Unavailable", http.StatusServiceUnavailable},
	{"504 Gateway Timeout", http.StatusGatewayTimeout},
	{"429 Too Many Requests", http.StatusTooManyRequests},
	{"422 Unprocessable Entity", http.StatusUnprocessableEntity},
	{"403 Forbidden", http.StatusForbidden},
	{"401 Unauthorized", http.StatusUnauthorized},
	{"404 Not Found", http.StatusNotFound},
	{"400 Bad Request", http.StatusBadRequest},
}

// extractStatusCodeFromError tries to extract HTTP status code from error message
func extractStatusCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	for _, p := range statusPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.code
		}
	}
	return 0
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrServerError) {
		return true
	}
	switch StatusCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnprocessableError reports a 422 validation failure.
func IsUnprocessableError(err error) bool {
	return errors.Is(err, ErrUnprocessable)
}
