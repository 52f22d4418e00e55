package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("missing config file must not be an error: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.CallbackPath != DefaultCallbackPath {
		t.Errorf("expected default callback path, got %q", cfg.Server.CallbackPath)
	}
	if cfg.Broker.PendingTTL != 10*time.Minute {
		t.Errorf("expected default pending TTL 10m, got %v", cfg.Broker.PendingTTL)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("expected file backend default, got %q", cfg.Storage.Backend)
	}
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
provider:
  authorizationEndpoint: https://auth.example.com/authorize
  tokenEndpoint: https://auth.example.com/token
  clientID: my-client
  clientSecret: my-secret
server:
  host: 0.0.0.0
  port: 9000
broker:
  pendingTTL: 5m
  httpTimeout: 3s
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Provider.ClientID != "my-client" {
		t.Errorf("unexpected clientID %q", cfg.Provider.ClientID)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Broker.PendingTTL != 5*time.Minute {
		t.Errorf("expected pending TTL 5m, got %v", cfg.Broker.PendingTTL)
	}
	if cfg.Broker.HTTPTimeout != 3*time.Second {
		t.Errorf("expected http timeout 3s, got %v", cfg.Broker.HTTPTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.Server.CallbackPath != DefaultCallbackPath {
		t.Errorf("expected default callback path, got %q", cfg.Server.CallbackPath)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "provider: [not a map")

	if _, err := LoadConfig(dir); err == nil {
		t.Error("malformed config must be an error")
	}
}

func TestLoadConfig_EnvOverridesClientSecret(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
provider:
  clientID: my-client
  clientSecret: from-file
`)

	t.Setenv(clientSecretEnv, "from-env")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Provider.ClientSecret != "from-env" {
		t.Errorf("environment secret must win, got %q", cfg.Provider.ClientSecret)
	}
}

func TestLoadConfig_DerivesRedirectURI(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
provider:
  clientID: my-client
server:
  host: localhost
  port: 9000
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := "http://localhost:9000/oauth/callback"
	if cfg.Provider.RedirectURI != want {
		t.Errorf("expected derived redirect URI %q, got %q", want, cfg.Provider.RedirectURI)
	}
}

func TestValidate(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without a provider must not validate")
	}

	cfg.Provider = ProviderConfig{
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         "https://auth.example.com/token",
		ClientID:              "my-client",
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete provider should validate: %v", err)
	}
}
