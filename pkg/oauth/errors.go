package oauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the expected, recoverable branches of the protocol.
// All of these surface to broker callers as a Failed outcome, never as a
// panic or an untyped error.
var (
	// ErrUnknownState indicates a callback whose state token matches no
	// pending authorization: forged callbacks, double-submits, or a
	// callback for a different principal's session.
	ErrUnknownState = errors.New("unknown or already consumed state token")

	// ErrExpiredState indicates the pending authorization outlived its TTL
	// before the callback arrived. The user must restart the flow.
	ErrExpiredState = errors.New("authorization state expired")

	// ErrScopeMismatch indicates the provider granted scopes unrelated to
	// the ones the pending authorization requested.
	ErrScopeMismatch = errors.New("granted scopes do not match requested scopes")

	// ErrUserDenied indicates the resource owner denied consent
	// (error=access_denied on the callback).
	ErrUserDenied = errors.New("user denied authorization")

	// ErrMissingRefreshToken indicates the token response carried no
	// refresh token. The caller should force prompt=consent on retry.
	ErrMissingRefreshToken = errors.New("token response missing refresh token")

	// ErrEndpointUnreachable indicates the token endpoint could not be
	// reached at all (network failure or timeout).
	ErrEndpointUnreachable = errors.New("token endpoint unreachable")
)

// errorResponse is the RFC 6749 error body returned by token endpoints.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RefreshDeniedError indicates the authorization server rejected a refresh
// token permanently (invalid_grant). The refresh token is dead; the caller
// must fall back to a full new authorization flow instead of retrying.
type RefreshDeniedError struct {
	Code        string
	Description string
}

func (e *RefreshDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("refresh denied: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("refresh denied: %s", e.Code)
}

// ExchangeError indicates a failed token endpoint request. Transient errors
// (server-side failures, timeouts) may succeed on a later, fresh flow;
// permanent errors (protocol rejections) will not.
type ExchangeError struct {
	Code        string
	Description string
	StatusCode  int
	Transient   bool
	Err         error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token exchange failed: %s (%s)", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token exchange failed: %s", e.Code)
	case e.Err != nil:
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	default:
		return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
	}
}

// Unwrap returns the underlying error for errors.Is/As inspection.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IsInvalidGrant reports whether the error is an invalid_grant rejection
// from the token endpoint. Other rejection codes (invalid_client,
// unauthorized_client) say nothing about the grant itself.
func IsInvalidGrant(err error) bool {
	var rd *RefreshDeniedError
	if errors.As(err, &rd) {
		return rd.Code == "invalid_grant"
	}
	var ex *ExchangeError
	if errors.As(err, &ex) {
		return ex.Code == "invalid_grant"
	}
	return false
}
