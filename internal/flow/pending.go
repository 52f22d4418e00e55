package flow

import (
	"errors"
	"sync"
	"time"

	"credbroker/pkg/logging"
	pkgoauth "credbroker/pkg/oauth"
)

// DefaultPendingTTL is how long a pending authorization stays live before
// it is garbage-collected. Abandoned browser flows must not leak state
// forever.
const DefaultPendingTTL = 10 * time.Minute

// ErrStateCollision indicates a freshly generated state token matches a
// live pending authorization. The caller must regenerate the token.
var ErrStateCollision = errors.New("state token collides with a live pending authorization")

// Pending is an authorization flow waiting for its provider callback.
type Pending struct {
	// ID identifies the record in logs.
	ID string

	// State is the unguessable, single-use token correlating the callback
	// with this flow.
	State string

	// Principal is the end user who must complete the flow.
	Principal string

	// CorrelationID ties the flow back to the conversational turn that
	// requested the credential.
	CorrelationID string

	// Scopes is the ordered scope sequence of the authorization request.
	Scopes []string

	// RedirectURI must exactly match between the authorization request and
	// the later code exchange.
	RedirectURI string

	// ClientID and ClientSecret are the OAuth client the flow runs as.
	ClientID     string
	ClientSecret string

	// TokenEndpoint is where the authorization code will be exchanged.
	TokenEndpoint string

	// CredentialKey is the capability key the resulting credential will be
	// stored under, fixed at start time from the requested scopes.
	CredentialKey string

	// CreatedAt starts the TTL clock.
	CreatedAt time.Time
}

// PendingStore provides thread-safe storage for pending authorizations.
// It is shared across concurrent sessions; deletion-on-lookup in Consume
// is the mechanism preventing double-consumption under concurrent callback
// delivery (e.g. duplicate browser postbacks).
type PendingStore struct {
	mu      sync.Mutex
	byState map[string]*Pending
	byOwner map[ownerKey]string // (principal, correlation) -> state

	ttl         time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type ownerKey struct {
	principal   string
	correlation string
}

// NewPendingStore creates a pending-authorization store with the default
// TTL and starts its background cleanup goroutine.
func NewPendingStore() *PendingStore {
	return NewPendingStoreWithTTL(DefaultPendingTTL)
}

// NewPendingStoreWithTTL creates a pending-authorization store with a
// custom TTL.
func NewPendingStoreWithTTL(ttl time.Duration) *PendingStore {
	ps := &PendingStore{
		byState:     make(map[string]*Pending),
		byOwner:     make(map[ownerKey]string),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}

	go ps.cleanupLoop()

	return ps
}

// TTL returns the store's time-to-live for pending records.
func (ps *PendingStore) TTL() time.Duration {
	return ps.ttl
}

// Add registers a pending authorization keyed by its state token.
//
// At most one pending authorization per (principal, correlation id) is
// live at a time: a second flow for the same pair replaces the first. A
// state token colliding with a different live record is rejected with
// ErrStateCollision so the caller regenerates.
func (ps *PendingStore) Add(p *Pending) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.byState[p.State]; exists {
		return ErrStateCollision
	}

	owner := ownerKey{principal: p.Principal, correlation: p.CorrelationID}
	if prevState, ok := ps.byOwner[owner]; ok {
		delete(ps.byState, prevState)
		logging.Debug("Flow", "Replaced pending authorization for principal=%s correlation=%s",
			logging.TruncatePrincipal(p.Principal), p.CorrelationID)
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	ps.byState[p.State] = p
	ps.byOwner[owner] = p.State

	logging.Debug("Flow", "Registered pending authorization id=%s principal=%s",
		p.ID, logging.TruncatePrincipal(p.Principal))
	return nil
}

// Consume looks up the pending authorization for state and removes it from
// the store before returning. The record is gone after the first call
// whether or not the subsequent exchange succeeds; a second call with the
// same state returns ErrUnknownState.
func (ps *PendingStore) Consume(state string) (*Pending, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.byState[state]
	if !ok {
		logging.Warn("Flow", "Callback with unknown state token")
		return nil, pkgoauth.ErrUnknownState
	}

	ps.removeLocked(p)

	if time.Since(p.CreatedAt) > ps.ttl {
		logging.Warn("Flow", "Callback for expired authorization id=%s age=%v", p.ID, time.Since(p.CreatedAt))
		return nil, pkgoauth.ErrExpiredState
	}

	return p, nil
}

// Len returns the number of live pending authorizations.
func (ps *PendingStore) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.byState)
}

// Stop stops the background cleanup goroutine.
func (ps *PendingStore) Stop() {
	ps.stopOnce.Do(func() {
		close(ps.stopCleanup)
	})
}

// removeLocked deletes p from both indexes. Requires ps.mu held.
func (ps *PendingStore) removeLocked(p *Pending) {
	delete(ps.byState, p.State)

	owner := ownerKey{principal: p.Principal, correlation: p.CorrelationID}
	if ps.byOwner[owner] == p.State {
		delete(ps.byOwner, owner)
	}
}

// cleanupLoop periodically removes expired pending authorizations.
func (ps *PendingStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ps.cleanup()
		case <-ps.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired pending authorizations.
func (ps *PendingStore) cleanup() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	count := 0
	for _, p := range ps.byState {
		if time.Since(p.CreatedAt) > ps.ttl {
			ps.removeLocked(p)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Flow", "Cleaned up %d expired pending authorizations", count)
	}
}
