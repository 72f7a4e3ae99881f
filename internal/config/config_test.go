package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_HOST", "localhost")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "balance-gateway", cfg.AppName)
	assert.Equal(t, "8090", cfg.AppPort)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.WSAllowedOrigins)
	assert.Zero(t, cfg.RedisDB)
}

func TestLoadExplicitValues(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_PORT", "9999")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_POOL_SIZE", "50")
	t.Setenv("WS_ALLOWED_ORIGINS", "app.example.com,*.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.AppPort)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 50, cfg.RedisPoolSize)
	assert.Equal(t, []string{"app.example.com", "*.example.com"}, cfg.WSAllowedOrigins)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REDIS_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadInvalidRedisDB(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
}
