package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoauth/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
env: local
storage_path: /tmp/test.db
http:
  port: 9090
  timeout: 5s
jwt:
  secret: some-secret
  issuer: ecoauth
  audience: ecoauth-clients
  access_token_ttl: 20m
  refresh_token_days: "14"
`)

	cfg := config.LoadConfig(path)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "/tmp/test.db", cfg.StoragePath)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "some-secret", cfg.JWT.Secret)
	assert.Equal(t, "ecoauth", cfg.JWT.Issuer)
	assert.Equal(t, 20*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.JWT.RefreshTokenTTL())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	assert.Panics(t, func() {
		config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	path := writeConfigFile(t, `
env: local
storage_path: /tmp/test.db
`)

	assert.Panics(t, func() {
		config.LoadConfig(path)
	})
}

func TestRefreshTokenTTL_Fallback(t *testing.T) {
	tests := []struct {
		name string
		days string
		want time.Duration
	}{
		{name: "valid", days: "14", want: 14 * 24 * time.Hour},
		{name: "missing", days: "", want: 7 * 24 * time.Hour},
		{name: "unparseable", days: "a-week", want: 7 * 24 * time.Hour},
		{name: "negative", days: "-3", want: 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.JWTConfig{RefreshTokenDays: tt.days}
			assert.Equal(t, tt.want, cfg.RefreshTokenTTL())
		})
	}
}
