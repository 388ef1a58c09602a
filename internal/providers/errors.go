package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthError is an authentication or authorization failure reported by a remote service
type AuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// QuotaExceededError is a remote quota or billing failure
type QuotaExceededError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// DecodingError is a response that could not be decoded into the expected shape
type DecodingError struct {
	What string
	Err  error
}

func (e *DecodingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to decode %s", e.What)
	}
	return fmt.Sprintf("failed to decode %s: %v", e.What, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// NetworkError is a transport-level or temporary server failure
type NetworkError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s unreachable (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s network failure: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitedError means the local rate limiter denied the call
type RateLimitedError struct {
	Caller string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s call skipped: local rate limit reached", e.Caller)
}

// ErrEmptyResponse is returned when a provider answers with no content
var ErrEmptyResponse = errors.New("empty response from provider")

// ClassifyHTTPStatus maps a non-200 status to the error taxonomy
func ClassifyHTTPStatus(provider string, statusCode int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &AuthError{Provider: provider, StatusCode: statusCode, Message: body}
	case statusCode == http.StatusPaymentRequired:
		return &QuotaExceededError{Provider: provider, StatusCode: statusCode, Message: body}
	case statusCode == http.StatusTooManyRequests:
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") || strings.Contains(lower, "insufficient") {
			return &QuotaExceededError{Provider: provider, StatusCode: statusCode, Message: body}
		}
		return &NetworkError{Provider: provider, StatusCode: statusCode, Err: fmt.Errorf("rate limited: %s", body)}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return &NetworkError{Provider: provider, StatusCode: statusCode, Err: fmt.Errorf("%s", body)}
	default:
		return fmt.Errorf("%s returned status %d: %s", provider, statusCode, body)
	}
}

// WrapTransport wraps an error from sending a request.
// Cancellation is passed through untouched so it is never retried.
func WrapTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &NetworkError{Provider: provider, Err: err}
}
