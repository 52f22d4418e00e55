package config

import "time"

const (
	// DefaultCallbackPath is the default path for OAuth callbacks.
	DefaultCallbackPath = "/oauth/callback"

	// DefaultPort is the default callback listener port.
	DefaultPort = 8488

	// DefaultHost is the default callback listener host.
	DefaultHost = "localhost"
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() BrokerConfig {
	return BrokerConfig{
		Storage: StorageConfig{
			Backend: "file",
		},
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			CallbackPath: DefaultCallbackPath,
		},
		Broker: BrokerTuning{
			PendingTTL:   10 * time.Minute,
			ExpiryMargin: 60 * time.Second,
			HTTPTimeout:  10 * time.Second,
		},
	}
}
