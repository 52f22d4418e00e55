package config

import "time"

// BrokerConfig is the top-level configuration structure for credbroker.
type BrokerConfig struct {
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Broker   BrokerTuning   `yaml:"broker"`
}

// ProviderConfig identifies the OAuth authorization server and the client
// registered with it.
type ProviderConfig struct {
	AuthorizationEndpoint string `yaml:"authorizationEndpoint"`
	TokenEndpoint         string `yaml:"tokenEndpoint"`
	ClientID              string `yaml:"clientID"`
	ClientSecret          string `yaml:"clientSecret,omitempty"` // May also come from CREDBROKER_CLIENT_SECRET
	RedirectURI           string `yaml:"redirectURI,omitempty"`  // Defaults to the callback server's own URL
}

// StorageConfig selects and configures the credential store backend.
type StorageConfig struct {
	Backend string `yaml:"backend,omitempty"` // "file" (default) or "memory"
	Dir     string `yaml:"dir,omitempty"`     // File backend directory (default: ~/.config/credbroker/credentials)
}

// ServerConfig configures the HTTP callback listener.
type ServerConfig struct {
	Host         string `yaml:"host,omitempty"`         // Host to bind to (default: localhost)
	Port         int    `yaml:"port,omitempty"`         // Listen port (default: 8488)
	CallbackPath string `yaml:"callbackPath,omitempty"` // Redirect target path (default: /oauth/callback)
}

// BrokerTuning holds the timing knobs of the acquisition pipeline.
type BrokerTuning struct {
	PendingTTL   time.Duration `yaml:"pendingTTL,omitempty"`   // Lifetime of an unconsumed flow (default: 10m)
	ExpiryMargin time.Duration `yaml:"expiryMargin,omitempty"` // Early-expiry margin on stored tokens (default: 60s)
	HTTPTimeout  time.Duration `yaml:"httpTimeout,omitempty"`  // Token endpoint request timeout (default: 10s)
}
