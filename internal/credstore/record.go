package credstore

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	pkgoauth "credbroker/pkg/oauth"
)

// ExpiryMargin is the margin added when checking record validity. A record
// expiring within the margin is treated as already expired so that a token
// valid at check time cannot expire mid-flight during the protected API
// call it authorizes.
const ExpiryMargin = 60 * time.Second

// Record is the unit of storage: one user-delegated credential for one
// (principal, capability) pair.
//
// The JSON layout is the persisted wire format and must stay backward
// compatible across process restarts.
type Record struct {
	// Principal is the end user this credential was delegated by.
	Principal string `json:"principal"`

	// Capability identifies what the credential authorizes; derived from
	// the canonical scope set (see CapabilityKey).
	Capability string `json:"capability"`

	// AccessToken is the bearer credential for the protected resource.
	AccessToken string `json:"access_token"`

	// RefreshToken silently obtains new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresAt is the absolute expiration timestamp of the access token.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scopes are the scopes the provider actually granted.
	Scopes []string `json:"scopes,omitempty"`

	// TokenEndpoint is where this record can be refreshed.
	TokenEndpoint string `json:"token_endpoint"`

	// ClientID identifies the OAuth client the grant belongs to.
	ClientID string `json:"client_id"`

	// ClientSecret authenticates the client at the token endpoint.
	// Never logged.
	ClientSecret string `json:"client_secret,omitempty"`

	// CreatedAt is when the record was last written.
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the access token has expired or will expire
// within the default safety margin.
func (r *Record) IsExpired() bool {
	return r.IsExpiredWithMargin(ExpiryMargin)
}

// IsExpiredWithMargin reports whether the access token has expired or will
// expire within the given margin.
func (r *Record) IsExpiredWithMargin(margin time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(r.ExpiresAt)
}

// Refreshable reports whether the record can be silently refreshed.
func (r *Record) Refreshable() bool {
	return r.RefreshToken != ""
}

// HasScope reports whether the record's granted scopes include scope.
func (r *Record) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ToOAuth2Token converts the record to an oauth2.Token for use with
// golang.org/x/oauth2 transports.
func (r *Record) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       r.ExpiresAt,
	}
}

// ToToken converts the record to the wire-level token type.
func (r *Record) ToToken() *pkgoauth.Token {
	return &pkgoauth.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		Scope:        pkgoauth.JoinScopes(r.Scopes),
	}
}

// Key identifies a record in the store.
type Key struct {
	Principal  string
	Capability string
}

// CapabilityKey derives the capability identifier from a scope set. The
// derivation is order-insensitive so that equal scope sets requested in
// different orders resolve to the same stored credential.
func CapabilityKey(scopes []string) string {
	sorted := make([]string, len(scopes))
	copy(sorted, scopes)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, " ")))
	return hex.EncodeToString(hash[:8])
}
