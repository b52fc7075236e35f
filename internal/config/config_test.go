package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "sqlite:///apparatus.db", cfg.DatabaseURL)
	assert.Equal(t, "file://artifacts", cfg.ArtifactStoreURI)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.False(t, cfg.AuthEnabled())
	assert.Zero(t, cfg.RateLimitPerMinute)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APPARATUS_PORT", "9100")
	t.Setenv("APPARATUS_DB_CONNECTION_STRING", "postgres://u:p@localhost:5432/apparatus")
	t.Setenv("APPARATUS_ARTIFACT_STORE_URI", "gs://bucket/runs")
	t.Setenv("APPARATUS_API_KEY_HASHES", "hash-a, hash-b,")
	t.Setenv("APPARATUS_READ_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "postgres://u:p@localhost:5432/apparatus", cfg.DatabaseURL)
	assert.Equal(t, "gs://bucket/runs", cfg.ArtifactStoreURI)
	assert.Equal(t, []string{"hash-a", "hash-b"}, cfg.APIKeyHashes)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("APPARATUS_PORT", "70000")
	_, err := Load()
	require.Error(t, err)
}

func TestEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("APPARATUS_PORT", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
}
