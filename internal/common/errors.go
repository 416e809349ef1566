// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common application errors.
var (
	// Authentication errors.
	ErrAuthRequired     = errors.New("not signed in")
	ErrAuthRejected     = errors.New("backend rejected authorization")
	ErrAuthTokenMissing = errors.New("session has no usable access token")

	// Transport errors.
	ErrNetworkFailure     = errors.New("backend unreachable")
	ErrBackend            = errors.New("backend error")
	ErrUnexpectedResponse = errors.New("unexpected backend response")
	ErrFetchFailed        = errors.New("failed to fetch projects")

	// Coordination errors.
	ErrConcurrencyRejected = errors.New("another request is already in flight")
	ErrNotFound            = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput marks malformed command arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// AuthMarkerHeader carries the reason for a 401 issued before the backend saw
// the request.
const AuthMarkerHeader = "X-Proxy-Auth"

// Values of AuthMarkerHeader.
const (
	AuthMarkerMissing = "Missing"
	AuthMarkerNoToken = "NoToken"
)

// APIError is a non-success response from the backend.
type APIError struct {
	Kind       error
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// NewAPIError classifies a failed response. For 401 responses the marker
// header decides between a missing session, a missing token, and a rejection.
func NewAPIError(statusCode int, marker, message string) *APIError {
	kind := ErrBackend
	if statusCode == http.StatusUnauthorized {
		switch marker {
		case AuthMarkerMissing:
			kind = ErrAuthRequired
		case AuthMarkerNoToken:
			kind = ErrAuthTokenMissing
		default:
			kind = ErrAuthRejected
		}
	}
	return &APIError{Kind: kind, StatusCode: statusCode, Message: message}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsAuthError reports whether err is any of the authentication failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrAuthRejected) ||
		errors.Is(err, ErrAuthTokenMissing)
}

// Message returns the text to show the user for err.
func Message(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" && !IsAuthError(err) {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrAuthRequired):
		return "You are not signed in. Run `susa login` to start a session."
	case errors.Is(err, ErrAuthTokenMissing):
		return "Your session has no usable access token. Please sign in again."
	case errors.Is(err, ErrAuthRejected):
		return "Backend rejected authorization. Please check your permissions."
	}
	return err.Error()
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if IsAuthError(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNetworkFailure) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadGateway ||
			apiErr.StatusCode == http.StatusServiceUnavailable ||
			apiErr.StatusCode == http.StatusGatewayTimeout ||
			apiErr.StatusCode == http.StatusTooManyRequests
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
