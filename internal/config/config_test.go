package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:               "8080",
		APIBaseURL:         "https://tophomedev.runasp.net/api",
		Environment:        "development",
		StorageDriver:      StorageMemory,
		TokenCheckInterval: time.Minute,
		CatalogTimeout:     5 * time.Second,
		ShopperIdleTTL:     30 * time.Minute,
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.expected, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"development", "development", true},
		{"dev", "dev", true},
		{"empty", "", true},
		{"production", "production", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.expected, cfg.IsDevelopment())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorContains string
	}{
		{
			name:   "valid_development",
			mutate: func(c *Config) {},
		},
		{
			name:          "relative_api_url",
			mutate:        func(c *Config) { c.APIBaseURL = "/api" },
			errorContains: "API_BASE_URL",
		},
		{
			name:          "unknown_storage_driver",
			mutate:        func(c *Config) { c.StorageDriver = "sqlite" },
			errorContains: "STORAGE_DRIVER must be one of",
		},
		{
			name: "postgres_without_url",
			mutate: func(c *Config) {
				c.StorageDriver = StoragePostgres
				c.DatabaseURL = ""
			},
			errorContains: "DATABASE_URL is required",
		},
		{
			name: "redis_without_addr",
			mutate: func(c *Config) {
				c.StorageDriver = StorageRedis
				c.RedisAddr = ""
			},
			errorContains: "REDIS_ADDR is required",
		},
		{
			name:          "zero_interval",
			mutate:        func(c *Config) { c.TokenCheckInterval = 0 },
			errorContains: "must be positive",
		},
		{
			name: "production_with_memory_storage",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.CookieSecure = true
			},
			errorContains: "must be durable",
		},
		{
			name: "production_without_secure_cookie",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.StorageDriver = StorageRedis
				c.RedisAddr = "redis:6379"
			},
			errorContains: "COOKIE_SECURE",
		},
		{
			name: "valid_production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.StorageDriver = StoragePostgres
				c.DatabaseURL = "postgres://db/tophome"
				c.CookieSecure = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("TOKEN_CHECK_INTERVAL", "")
	t.Setenv("COOKIE_SECURE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, 60*time.Second, cfg.TokenCheckInterval)
	assert.Equal(t, 5*time.Second, cfg.CatalogTimeout)
	assert.False(t, cfg.CookieSecure)
	assert.True(t, cfg.OpenAPIValidation)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_DRIVER", StorageRedis)
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("TOKEN_CHECK_INTERVAL", "30s")
	t.Setenv("COOKIE_SECURE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.TokenCheckInterval)
	assert.True(t, cfg.CookieSecure, "production defaults to secure cookies")
	assert.False(t, cfg.OpenAPIValidation, "production defaults to no request validation")
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"TOKEN_CHECK_INTERVAL", "every minute"},
		{"COOKIE_SECURE", "maybe"},
		{"REDIS_DB", "two"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
