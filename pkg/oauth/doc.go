// Package oauth implements the wire-level pieces of the OAuth 2.0
// Authorization Code Grant used by the credential broker: the token
// endpoint client (code exchange and refresh), authorization URL
// construction, state parameter generation, and the shared token and
// error types.
//
// The package speaks RFC 6749 field names verbatim because the remote
// authorization server is not under this system's control. Higher-level
// policy (caching, single-flight refresh, pending-authorization
// correlation) lives in internal/broker and internal/flow.
package oauth
