package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "CART_KEY", "STORAGE_DRIVER", "REQUEST_TIMEOUT", "BREAKER_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "@GoMarketplace:cart", cfg.CartKey)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.BreakerEnabled)
	assert.Empty(t, cfg.OTLPEndpoint)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CART_KEY", "custom")
	t.Setenv("STORAGE_DRIVER", "Redis")
	t.Setenv("CART_TTL", "24h")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("BREAKER_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "custom", cfg.CartKey)
	assert.Equal(t, DriverRedis, cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.CartTTL)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.BreakerEnabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("BREAKER_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.BreakerEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "cassandra" }, wantErr: true},
		{name: "empty key", mutate: func(c *Config) { c.CartKey = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.CartTTL = -time.Hour }, wantErr: true},
		{name: "sub-second ttl", mutate: func(c *Config) { c.CartTTL = time.Millisecond }, wantErr: true},
		{name: "long ttl", mutate: func(c *Config) { c.CartTTL = 100 * 365 * 24 * time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{StorageDriver: DriverSQLite, CartKey: "k", RequestTimeout: time.Second, ShutdownTimeout: time.Second}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
