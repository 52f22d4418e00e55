package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"credbroker/internal/credstore"
	"credbroker/internal/flow"
	"credbroker/pkg/logging"
	pkgoauth "credbroker/pkg/oauth"
)

// Broker mediates between sessions that need delegated credentials and the
// OAuth authorization server that issues them. It is safe for concurrent
// use across sessions.
type Broker struct {
	store        credstore.Store
	pending      *flow.PendingStore
	initiator    *flow.Initiator
	client       *pkgoauth.Client
	provider     flow.Provider
	expiryMargin time.Duration

	// refreshGroup collapses concurrent refreshes of the same credential
	// into one token endpoint call.
	refreshGroup singleflight.Group
}

// Option configures the broker.
type Option func(*Broker)

// WithExpiryMargin sets the margin within which a stored token counts as
// already expired. A token valid at check time must not expire mid-flight
// during the API call it authorizes.
func WithExpiryMargin(margin time.Duration) Option {
	return func(b *Broker) {
		if margin > 0 {
			b.expiryMargin = margin
		}
	}
}

// New creates a broker around the given collaborators.
func New(store credstore.Store, pending *flow.PendingStore, client *pkgoauth.Client, provider flow.Provider, opts ...Option) *Broker {
	b := &Broker{
		store:        store,
		pending:      pending,
		initiator:    flow.NewInitiator(pending, provider),
		client:       client,
		provider:     provider,
		expiryMargin: credstore.ExpiryMargin,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Acquire resolves a credential for (principal, scopes) without ever
// blocking on user interaction. In order it tries the stored credential,
// then a silent refresh, then falls back to starting a new authorization
// flow and returning its URL.
func (b *Broker) Acquire(ctx context.Context, principal, correlationID string, scopes []string) *Outcome {
	key := credstore.Key{Principal: principal, Capability: credstore.CapabilityKey(scopes)}

	record, err := b.store.Get(ctx, key)
	if err != nil {
		logging.Error("Broker", err, "Credential lookup failed for principal=%s", logging.TruncatePrincipal(principal))
		return Failed(fmt.Errorf("credential lookup failed: %w", err))
	}

	if record != nil && !record.IsExpiredWithMargin(b.expiryMargin) {
		logging.Debug("Broker", "Credential cache hit for principal=%s capability=%s",
			logging.TruncatePrincipal(principal), key.Capability)
		return Credentials(record)
	}

	if record != nil && record.Refreshable() {
		refreshed, err := b.refresh(ctx, key, record)
		if err == nil {
			return Credentials(refreshed)
		}

		if pkgoauth.IsInvalidGrant(err) {
			// The refresh token is permanently dead. Drop the record and
			// fall through to a fresh flow; the user sees a normal
			// authorization prompt, not an error.
			slog.Info("SECURITY_AUDIT: refresh token revoked",
				"event", "refresh_denied",
				"principal", logging.TruncatePrincipal(principal),
				"capability", key.Capability,
			)
			if delErr := b.store.Delete(ctx, key); delErr != nil {
				logging.Error("Broker", delErr, "Failed to delete dead credential")
			}
		} else {
			// Transient failure: the stored refresh token may still be
			// good, so keep the record and report the failure.
			logging.Error("Broker", err, "Token refresh failed for principal=%s", logging.TruncatePrincipal(principal))
			return Failed(err)
		}
	}

	initiation, err := b.initiator.Start(principal, correlationID, scopes)
	if err != nil {
		logging.Error("Broker", err, "Failed to start authorization flow")
		return Failed(err)
	}

	return NeedsAuthorization(initiation.AuthorizationURL, initiation.State)
}

// refresh performs a single-flight token refresh for key and persists the
// result before returning it. Concurrent callers for the same key share
// one token endpoint call and one store write.
func (b *Broker) refresh(ctx context.Context, key credstore.Key, record *credstore.Record) (*credstore.Record, error) {
	flightKey := key.Principal + "\x00" + key.Capability

	result, err, shared := b.refreshGroup.Do(flightKey, func() (interface{}, error) {
		// Another flight may have refreshed and persisted while we waited
		// for the lock; re-read so we refresh against the newest token.
		current, err := b.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("credential lookup failed: %w", err)
		}
		if current == nil {
			current = record
		}
		if !current.IsExpiredWithMargin(b.expiryMargin) {
			return current, nil
		}

		token, err := b.client.Refresh(ctx, current.TokenEndpoint, current.RefreshToken, current.ClientID, current.ClientSecret)
		if err != nil {
			return nil, err
		}

		updated := &credstore.Record{
			Principal:     current.Principal,
			Capability:    current.Capability,
			AccessToken:   token.AccessToken,
			RefreshToken:  token.RefreshToken,
			TokenType:     token.TokenType,
			ExpiresAt:     token.ExpiresAt,
			Scopes:        token.Scopes(),
			TokenEndpoint: current.TokenEndpoint,
			ClientID:      current.ClientID,
			ClientSecret:  current.ClientSecret,
			CreatedAt:     time.Now(),
		}

		// Providers that do not rotate refresh tokens omit the field from
		// the refresh response; the old token stays valid.
		if updated.RefreshToken == "" {
			updated.RefreshToken = current.RefreshToken
		}
		if len(updated.Scopes) == 0 {
			updated.Scopes = current.Scopes
		}

		// Persist before handing the token out so a crash cannot leave
		// callers holding a rotated token the store never saw.
		if err := b.store.Put(ctx, key, updated); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
		}

		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		logging.Debug("Broker", "Refresh for principal=%s capability=%s shared across concurrent callers",
			logging.TruncatePrincipal(key.Principal), key.Capability)
	}

	return result.(*credstore.Record), nil
}

// Complete finishes an authorization flow on behalf of principal. The
// pending record is consumed before anything else: a given state token
// resolves at most one completion attempt, success or failure.
func (b *Broker) Complete(ctx context.Context, principal string, cb Callback) *Outcome {
	p, err := b.pending.Consume(cb.State)
	if err != nil {
		return Failed(err)
	}

	if p.Principal != principal {
		// A valid state presented by the wrong principal is treated the
		// same as an unknown one so the response leaks nothing about
		// other users' flows.
		slog.Warn("SECURITY_AUDIT: callback principal mismatch",
			"event", "callback_principal_mismatch",
			"flow_id", p.ID,
		)
		return Failed(pkgoauth.ErrUnknownState)
	}

	return b.completePending(ctx, p, cb)
}

// CompleteCallback finishes an authorization flow from a raw provider
// redirect, where the only correlation handle is the state token itself.
// The principal is recovered from the consumed pending record.
func (b *Broker) CompleteCallback(ctx context.Context, cb Callback) *Outcome {
	p, err := b.pending.Consume(cb.State)
	if err != nil {
		return Failed(err)
	}

	return b.completePending(ctx, p, cb)
}

// completePending runs the post-consume half of completion: denial
// handling, code exchange, scope validation, and persistence.
func (b *Broker) completePending(ctx context.Context, p *flow.Pending, cb Callback) *Outcome {
	if cb.Error != "" {
		if cb.Error == "access_denied" {
			logging.Info("Broker", "User denied authorization for flow id=%s", p.ID)
			return Failed(pkgoauth.ErrUserDenied)
		}
		return Failed(&pkgoauth.ExchangeError{Code: cb.Error, Description: cb.ErrorDescription})
	}

	// One attempt only. Authorization codes are single-use at the
	// provider, so retrying a failed exchange can never succeed.
	token, err := b.client.ExchangeCode(ctx, p.TokenEndpoint, cb.Code, p.RedirectURI, p.ClientID, p.ClientSecret)
	if err != nil {
		logging.Error("Broker", err, "Code exchange failed for flow id=%s", p.ID)
		return Failed(err)
	}

	if token.RefreshToken == "" {
		return Failed(pkgoauth.ErrMissingRefreshToken)
	}

	granted := token.Scopes()
	if len(granted) == 0 {
		// Providers may omit scope when granting exactly what was asked.
		granted = p.Scopes
	}
	if !scopesOverlap(granted, p.Scopes) {
		return Failed(fmt.Errorf("%w: requested %v, granted %v", pkgoauth.ErrScopeMismatch, p.Scopes, granted))
	}

	key := credstore.Key{Principal: p.Principal, Capability: p.CredentialKey}
	record := &credstore.Record{
		Principal:     p.Principal,
		Capability:    p.CredentialKey,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		TokenType:     token.TokenType,
		ExpiresAt:     token.ExpiresAt,
		Scopes:        granted,
		TokenEndpoint: p.TokenEndpoint,
		ClientID:      p.ClientID,
		ClientSecret:  p.ClientSecret,
		CreatedAt:     time.Now(),
	}

	if err := b.store.Put(ctx, key, record); err != nil {
		return Failed(fmt.Errorf("failed to persist credential: %w", err))
	}

	logging.Info("Broker", "Authorization complete for flow id=%s principal=%s",
		p.ID, logging.TruncatePrincipal(p.Principal))

	return Credentials(record)
}

// Status summarizes the stored credential for (principal, scopes) without
// touching the network.
func (b *Broker) Status(ctx context.Context, principal string, scopes []string) (*credstore.Record, error) {
	return b.store.Get(ctx, credstore.Key{Principal: principal, Capability: credstore.CapabilityKey(scopes)})
}

// Revoke drops the stored credential for (principal, scopes).
func (b *Broker) Revoke(ctx context.Context, principal string, scopes []string) error {
	return b.store.Delete(ctx, credstore.Key{Principal: principal, Capability: credstore.CapabilityKey(scopes)})
}

// scopesOverlap reports whether any requested scope was granted. A grant
// that shares no scope with the request authorizes nothing the caller
// asked for.
func scopesOverlap(granted, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
