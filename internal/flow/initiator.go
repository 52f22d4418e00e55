package flow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"credbroker/internal/credstore"
	"credbroker/pkg/logging"
	pkgoauth "credbroker/pkg/oauth"
)

// stateCollisionRetries bounds regeneration attempts when a freshly
// generated state token collides with a live pending authorization.
// Collisions are effectively impossible with 256-bit tokens; hitting the
// bound means the entropy source is broken.
const stateCollisionRetries = 3

// Provider describes the authorization server and OAuth client a flow
// runs against.
type Provider struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	ClientID              string
	ClientSecret          string
	RedirectURI           string
}

// Initiation is the result of starting a flow: the URL the resource owner
// must visit verbatim, and the state token correlating the eventual
// callback.
type Initiation struct {
	AuthorizationURL string
	State            string
}

// Initiator builds authorization URLs and registers the pending
// authorizations backing them.
type Initiator struct {
	pending  *PendingStore
	provider Provider
}

// NewInitiator creates an initiator registering flows in pending.
func NewInitiator(pending *PendingStore, provider Provider) *Initiator {
	return &Initiator{
		pending:  pending,
		provider: provider,
	}
}

// Start begins a new authorization flow for the principal. It generates an
// unguessable state token, registers a pending authorization, and returns
// the authorization URL. It never blocks: the human completes the browser
// flow across an arbitrary number of later turns.
func (i *Initiator) Start(principal, correlationID string, scopes []string) (*Initiation, error) {
	var lastErr error
	for attempt := 0; attempt < stateCollisionRetries; attempt++ {
		state, err := pkgoauth.GenerateState()
		if err != nil {
			// Entropy source unavailable: fatal, never degrade.
			return nil, err
		}

		p := &Pending{
			ID:            uuid.NewString(),
			State:         state,
			Principal:     principal,
			CorrelationID: correlationID,
			Scopes:        scopes,
			RedirectURI:   i.provider.RedirectURI,
			ClientID:      i.provider.ClientID,
			ClientSecret:  i.provider.ClientSecret,
			TokenEndpoint: i.provider.TokenEndpoint,
			CredentialKey: credstore.CapabilityKey(scopes),
			CreatedAt:     time.Now(),
		}

		if err := i.pending.Add(p); err != nil {
			lastErr = err
			continue
		}

		authURL, err := pkgoauth.BuildAuthorizationURL(i.provider.AuthorizationEndpoint, pkgoauth.AuthorizationURLParams{
			ClientID:      i.provider.ClientID,
			RedirectURI:   i.provider.RedirectURI,
			Scopes:        scopes,
			State:         state,
			OfflineAccess: true,
			ForceConsent:  true,
		})
		if err != nil {
			return nil, err
		}

		logging.Info("Flow", "Started authorization flow id=%s principal=%s scopes=%d",
			p.ID, logging.TruncatePrincipal(principal), len(scopes))

		return &Initiation{
			AuthorizationURL: authURL,
			State:            state,
		}, nil
	}

	return nil, fmt.Errorf("failed to register pending authorization after %d attempts: %w", stateCollisionRetries, lastErr)
}
