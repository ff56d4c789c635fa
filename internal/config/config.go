// Package config loads service configuration. Environment variables are
// the primary source, matching how the service is deployed; an optional
// YAML file (CONFIG_FILE) provides the same keys for local development.
// Env vars win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"
)

// Config is everything the server binary needs at startup.
type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// JWTSecret enables bearer-token auth on the API when set.
	JWTSecret string `yaml:"jwt_secret"`

	// Execution limits.
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
	MaxTimeoutSeconds     int `yaml:"max_timeout_seconds"`
	MaxOutputSize         int `yaml:"max_output_size"`
	SandboxPoolSize       int `yaml:"sandbox_pool_size"`

	// DisabledModules lists optional sandbox modules to leave out.
	DisabledModules []string `yaml:"disabled_modules"`

	// Artifact store.
	ArtifactStoreURL   string `yaml:"artifact_store_url"`
	ArtifactStoreToken string `yaml:"artifact_store_token"`
	OAuthTokenURL      string `yaml:"oauth_token_url"`
	OAuthClientID      string `yaml:"oauth_client_id"`
	OAuthClientSecret  string `yaml:"oauth_client_secret"`
}

// Default returns the built-in defaults, matching the engine's production
// limits.
func Default() Config {
	return Config{
		Port:                  8080,
		DBPath:                "data/sandbox.db",
		DefaultTimeoutSeconds: 30,
		MaxTimeoutSeconds:     120,
		MaxOutputSize:         100000,
		SandboxPoolSize:       3,
	}
}

// ArtifactOAuth returns the client-credentials config for the artifact
// store. A zero TokenURL means OAuth is not configured and a static token
// (if any) is used instead.
func (c Config) ArtifactOAuth() clientcredentials.Config {
	return clientcredentials.Config{
		TokenURL:     c.OAuthTokenURL,
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	stringVar(&c.DBPath, "DB_PATH")
	stringVar(&c.JWTSecret, "JWT_SECRET")
	stringVar(&c.ArtifactStoreURL, "ARTIFACT_STORE_URL")
	stringVar(&c.ArtifactStoreToken, "ARTIFACT_STORE_TOKEN")
	stringVar(&c.OAuthTokenURL, "ARTIFACT_OAUTH_TOKEN_URL")
	stringVar(&c.OAuthClientID, "ARTIFACT_OAUTH_CLIENT_ID")
	stringVar(&c.OAuthClientSecret, "ARTIFACT_OAUTH_CLIENT_SECRET")

	for _, v := range []struct {
		dst  *int
		name string
	}{
		{&c.Port, "PORT"},
		{&c.DefaultTimeoutSeconds, "EXECUTION_TIMEOUT"},
		{&c.MaxTimeoutSeconds, "MAX_TIMEOUT"},
		{&c.MaxOutputSize, "MAX_OUTPUT_SIZE"},
		{&c.SandboxPoolSize, "SANDBOX_POOL_SIZE"},
	} {
		if err := intVar(v.dst, v.name); err != nil {
			return err
		}
	}
	return nil
}

func stringVar(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func intVar(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s value %q", name, v)
	}
	*dst = n
	return nil
}
