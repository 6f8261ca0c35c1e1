// Package config provides process-level configuration loaded from env vars.
// All fields have safe defaults so the binary runs locally without any env
// setup. Domain settings (models, chains, credentials) live in the YAML
// settings store, not here.
package config

import "os"

// Config holds runtime configuration for NotePilot.
type Config struct {
	// Server
	Host string // NOTEPILOT_HOST — default: "127.0.0.1"
	Port string // NOTEPILOT_PORT — default: "8799"

	// Storage
	DBPath       string // NOTEPILOT_DB — default: "notepilot.db" (vault index)
	SettingsPath string // NOTEPILOT_SETTINGS — default: "notepilot.yaml"
	VaultPath    string // NOTEPILOT_VAULT — default: "." (note tree root)

	// Auth + secrets
	JWTSecret        string // NOTEPILOT_JWT_SECRET — default: dev-only constant
	APIToken         string // NOTEPILOT_API_TOKEN — shared secret for /auth/token
	SecretPassphrase string // NOTEPILOT_SECRET_KEY — credential envelope key

	// Logging
	LogLevel string // NOTEPILOT_LOG_LEVEL — default: "info"
}

const (
	envKeyHost             = "NOTEPILOT_HOST"
	envKeyPort             = "NOTEPILOT_PORT"
	envKeyDBPath           = "NOTEPILOT_DB"
	envKeySettingsPath     = "NOTEPILOT_SETTINGS"
	envKeyVaultPath        = "NOTEPILOT_VAULT"
	envKeyJWTSecret        = "NOTEPILOT_JWT_SECRET"
	envKeyAPIToken         = "NOTEPILOT_API_TOKEN"
	envKeySecretPassphrase = "NOTEPILOT_SECRET_KEY"
	envKeyLogLevel         = "NOTEPILOT_LOG_LEVEL"
)

// devJWTSecret keeps local runs working without env setup. Deployments set
// NOTEPILOT_JWT_SECRET.
const devJWTSecret = "notepilot-dev-secret-do-not-use-in-prod"

// Load reads configuration from environment variables, applying defaults for
// missing values.
func Load() Config {
	return Config{
		Host:             envOr(envKeyHost, "127.0.0.1"),
		Port:             envOr(envKeyPort, "8799"),
		DBPath:           envOr(envKeyDBPath, "notepilot.db"),
		SettingsPath:     envOr(envKeySettingsPath, "notepilot.yaml"),
		VaultPath:        envOr(envKeyVaultPath, "."),
		JWTSecret:        envOr(envKeyJWTSecret, devJWTSecret),
		APIToken:         envOr(envKeyAPIToken, ""),
		SecretPassphrase: envOr(envKeySecretPassphrase, devJWTSecret),
		LogLevel:         envOr(envKeyLogLevel, "info"),
	}
}

// Addr returns the host:port the HTTP server binds.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
