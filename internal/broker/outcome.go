package broker

import (
	"errors"

	"credbroker/internal/credstore"
	pkgoauth "credbroker/pkg/oauth"
)

// Kind discriminates the three possible results of a broker operation.
type Kind string

const (
	// KindNeedsAuthorization means no usable credential exists; the user
	// must visit the authorization URL.
	KindNeedsAuthorization Kind = "needs_authorization"

	// KindCredentials means a valid credential is available.
	KindCredentials Kind = "credentials"

	// KindFailed means the operation failed in a way the user or caller
	// must act on.
	KindFailed Kind = "failed"
)

// Failure codes carried by Failed outcomes. They are stable identifiers a
// caller can branch on to pick a user-facing message.
const (
	FailureUnknownState        = "unknown_state"
	FailureExpiredState        = "expired_state"
	FailureScopeMismatch       = "scope_mismatch"
	FailureUserDenied          = "user_denied"
	FailureMissingRefreshToken = "missing_refresh_token"
	FailureRefreshDenied       = "refresh_denied"
	FailureExchangeTransient   = "exchange_transient"
	FailureExchangePermanent   = "exchange_permanent"
	FailureEndpointUnreachable = "endpoint_unreachable"
	FailureInternal            = "internal"
)

// Outcome is the single result type of Acquire and Complete. Exactly one
// of the variant fields is populated, selected by Kind.
type Outcome struct {
	Kind Kind `json:"kind"`

	// AuthorizationURL and State are set when Kind is KindNeedsAuthorization.
	AuthorizationURL string `json:"authorization_url,omitempty"`
	State            string `json:"state,omitempty"`

	// Record is set when Kind is KindCredentials.
	Record *credstore.Record `json:"record,omitempty"`

	// FailureCode and FailureMessage are set when Kind is KindFailed.
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	// Retryable reports whether restarting the flow may succeed. Set on
	// Failed outcomes only.
	Retryable bool `json:"retryable,omitempty"`
}

// NeedsAuthorization builds the outcome directing the user to the consent
// screen.
func NeedsAuthorization(authorizationURL, state string) *Outcome {
	return &Outcome{
		Kind:             KindNeedsAuthorization,
		AuthorizationURL: authorizationURL,
		State:            state,
	}
}

// Credentials builds the outcome carrying a usable credential.
func Credentials(record *credstore.Record) *Outcome {
	return &Outcome{
		Kind:   KindCredentials,
		Record: record,
	}
}

// Failed maps an error to a Failed outcome with a stable failure code.
func Failed(err error) *Outcome {
	code, retryable := classify(err)
	return &Outcome{
		Kind:           KindFailed,
		FailureCode:    code,
		FailureMessage: err.Error(),
		Retryable:      retryable,
	}
}

// classify maps an error to its failure code and retryability. Retryable
// means a brand-new flow might succeed, not that the same request should
// be replayed.
func classify(err error) (string, bool) {
	switch {
	case errors.Is(err, pkgoauth.ErrUnknownState):
		return FailureUnknownState, true
	case errors.Is(err, pkgoauth.ErrExpiredState):
		return FailureExpiredState, true
	case errors.Is(err, pkgoauth.ErrScopeMismatch):
		return FailureScopeMismatch, false
	case errors.Is(err, pkgoauth.ErrUserDenied):
		return FailureUserDenied, true
	case errors.Is(err, pkgoauth.ErrMissingRefreshToken):
		return FailureMissingRefreshToken, true
	case errors.Is(err, pkgoauth.ErrEndpointUnreachable):
		return FailureEndpointUnreachable, true
	}

	var rd *pkgoauth.RefreshDeniedError
	if errors.As(err, &rd) {
		return FailureRefreshDenied, true
	}

	var ex *pkgoauth.ExchangeError
	if errors.As(err, &ex) {
		if ex.Transient {
			return FailureExchangeTransient, true
		}
		return FailureExchangePermanent, false
	}

	return FailureInternal, false
}

// Callback carries the query parameters delivered by the provider's
// redirect, whichever transport received it.
type Callback struct {
	// Code is the authorization code (success callbacks only).
	Code string

	// State is the correlation token from the authorization request.
	State string

	// Error and ErrorDescription are set on denial callbacks
	// (e.g. error=access_denied).
	Error            string
	ErrorDescription string
}
