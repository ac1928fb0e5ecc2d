package remote

import (
	"errors"
	"fmt"
)

// Auth error codes.
const (
	AuthCodeUnauthorized  = "unauthorized"
	AuthCodeTokenExpired  = "token_expired"
	AuthCodeRefreshFailed = "refresh_failed"
)

// AuthError signals that a network call could not be authenticated.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure, including timeouts.
type NetworkError struct {
	Op      string
	URL     string
	Timeout bool
	Err     error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
