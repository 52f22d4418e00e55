package cmd

import (
	"fmt"
	"net/http"
	"time"

	"credbroker/internal/broker"
	"credbroker/internal/config"
	"credbroker/internal/credstore"
	"credbroker/internal/flow"
	pkgoauth "credbroker/pkg/oauth"
)

// brokerStack holds the assembled broker and the pieces that need explicit
// shutdown.
type brokerStack struct {
	Config  config.BrokerConfig
	Store   credstore.Store
	Pending *flow.PendingStore
	Broker  *broker.Broker
}

// buildBrokerStack loads configuration and assembles the broker with its
// collaborators. The returned cleanup stops background goroutines.
func buildBrokerStack() (*brokerStack, func(), error) {
	configPath := rootConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, stopStore, err := buildStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	pending := flow.NewPendingStoreWithTTL(cfg.Broker.PendingTTL)

	client := pkgoauth.NewClient(
		pkgoauth.WithHTTPClient(&http.Client{Timeout: cfg.Broker.HTTPTimeout}),
	)

	provider := flow.Provider{
		AuthorizationEndpoint: cfg.Provider.AuthorizationEndpoint,
		TokenEndpoint:         cfg.Provider.TokenEndpoint,
		ClientID:              cfg.Provider.ClientID,
		ClientSecret:          cfg.Provider.ClientSecret,
		RedirectURI:           cfg.Provider.RedirectURI,
	}

	stack := &brokerStack{
		Config:  cfg,
		Store:   store,
		Pending: pending,
		Broker: broker.New(store, pending, client, provider,
			broker.WithExpiryMargin(cfg.Broker.ExpiryMargin)),
	}

	cleanup := func() {
		pending.Stop()
		if stopStore != nil {
			stopStore()
		}
	}

	return stack, cleanup, nil
}

// buildStore creates the credential store selected by the configuration.
func buildStore(cfg config.StorageConfig) (credstore.Store, func(), error) {
	switch cfg.Backend {
	case "memory":
		ms := credstore.NewMemoryStore()
		return ms, ms.Stop, nil
	case "file", "":
		fs, err := credstore.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize credential storage: %w", err)
		}
		return fs, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s (supported: file, memory)", cfg.Backend)
	}
}

// Poll timing for commands that wait for a flow to complete in a browser.
const (
	// DefaultAuthWaitTimeout is the default timeout for waiting for
	// authorization to complete.
	DefaultAuthWaitTimeout = 2 * time.Minute
	// DefaultAuthPollInterval is the default interval for polling
	// credential status while waiting.
	DefaultAuthPollInterval = 500 * time.Millisecond
)
