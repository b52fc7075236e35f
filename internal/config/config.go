// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. Scheme selects the backend: sqlite:/// or postgres://.
	DatabaseURL string

	// Artifact store settings. Scheme selects the sink: file:// or gs://.
	ArtifactStoreURI string

	// Auth settings. Auth is off unless APIKeyHashes is non-empty.
	APIKeyHashes      []string
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Rate limiting for ingestion routes. Zero disables.
	RateLimitPerMinute int
	RateLimitBurst     int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
	MaxArtifactBytes    int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("APPARATUS_PORT", 5000),
		ReadTimeout:         envDuration("APPARATUS_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("APPARATUS_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("APPARATUS_DB_CONNECTION_STRING", "sqlite:///apparatus.db"),
		ArtifactStoreURI:    envStr("APPARATUS_ARTIFACT_STORE_URI", "file://artifacts"),
		APIKeyHashes:        envList("APPARATUS_API_KEY_HASHES"),
		JWTPrivateKeyPath:   envStr("APPARATUS_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("APPARATUS_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("APPARATUS_JWT_EXPIRATION", 24*time.Hour),
		RateLimitPerMinute:  envInt("APPARATUS_RATE_LIMIT_PER_MINUTE", 0),
		RateLimitBurst:      envInt("APPARATUS_RATE_LIMIT_BURST", 50),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "apparatus"),
		LogLevel:            envStr("APPARATUS_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("APPARATUS_MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
		MaxArtifactBytes:    int64(envInt("APPARATUS_MAX_ARTIFACT_BYTES", 512*1024*1024)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: APPARATUS_DB_CONNECTION_STRING is required")
	}
	if c.ArtifactStoreURI == "" {
		return fmt.Errorf("config: APPARATUS_ARTIFACT_STORE_URI is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: APPARATUS_PORT must be in 1..65535")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: APPARATUS_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.MaxArtifactBytes <= 0 {
		return fmt.Errorf("config: APPARATUS_MAX_ARTIFACT_BYTES must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: APPARATUS_RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// AuthEnabled reports whether API-key auth is configured.
func (c Config) AuthEnabled() bool {
	return len(c.APIKeyHashes) > 0
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
