package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"credbroker/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/credbroker"
	configFileName = "config.yaml"

	// clientSecretEnv overrides the configured client secret so it never
	// has to live in the config file.
	clientSecretEnv = "CREDBROKER_CLIENT_SECRET"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. The
// directory should contain config.yaml; if it does not, the defaults are
// returned.
func LoadConfig(configPath string) (BrokerConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			applyDerivedDefaults(&config)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return BrokerConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		// config malformed
		return BrokerConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&config)
	applyDerivedDefaults(&config)

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// Validate checks that the configuration is complete enough to run the
// broker against a real provider.
func (c *BrokerConfig) Validate() error {
	if c.Provider.AuthorizationEndpoint == "" {
		return errors.New("provider.authorizationEndpoint is required")
	}
	if c.Provider.TokenEndpoint == "" {
		return errors.New("provider.tokenEndpoint is required")
	}
	if c.Provider.ClientID == "" {
		return errors.New("provider.clientID is required")
	}
	return nil
}

func applyEnvOverrides(config *BrokerConfig) {
	if secret := os.Getenv(clientSecretEnv); secret != "" {
		config.Provider.ClientSecret = secret
	}
}

// applyDerivedDefaults fills fields whose default depends on other fields.
func applyDerivedDefaults(config *BrokerConfig) {
	if config.Provider.RedirectURI == "" {
		config.Provider.RedirectURI = fmt.Sprintf("http://%s:%d%s",
			config.Server.Host, config.Server.Port, config.Server.CallbackPath)
	}
}
