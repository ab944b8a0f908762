package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/d9705996/confera/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoad_MissingDBDSN(t *testing.T) {
	// DB_DSN is only required when DB_DRIVER=postgres.
	setSecrets(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoad_SQLiteNoDBDSN(t *testing.T) {
	setSecrets(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "")
	_, err := config.Load()
	require.NoError(t, err)
}

func TestLoad_MissingAccessSecret(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET")
}

func TestLoad_MissingRefreshSecret(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")
}

func TestLoad_EqualSecretsRejected(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)
	for _, k := range []string{
		"HTTP_PORT", "LOG_LEVEL", "LOG_FORMAT", "DB_DRIVER", "DB_FILE", "WORKER_CONCURRENCY",
		"JWT_ACCESS_EXPIRATION", "JWT_REFRESH_EXPIRATION", "APP_ENV", "NODE_ENV", "FRONTEND_URL",
		"BCRYPT_COST", "AUTH_RATE_LIMIT_RPS", "AUTH_RATE_LIMIT_BURST", "GOOGLE_JWKS_URL",
	} {
		os.Unsetenv(k)
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "confera.db", cfg.DB.File)
	assert.Equal(t, "development", cfg.App.Env)
	assert.False(t, cfg.App.Production())
	assert.Equal(t, "http://localhost:5173", cfg.App.FrontendURL)
	assert.Equal(t, config.MinBcryptCost, cfg.App.BcryptCost)
	assert.Equal(t, 5.0, cfg.RateLimit.PerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, "https://www.googleapis.com/oauth2/v3/certs", cfg.Google.JWKSURL)
}

func TestLoad_Overrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("JWT_ACCESS_EXPIRATION", "5m")
	t.Setenv("JWT_REFRESH_EXPIRATION", "30d")
	t.Setenv("APP_ENV", "production")
	t.Setenv("FRONTEND_URL", "https://app.confera.io/")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("GOOGLE_CLIENT_ID", "client-123")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.True(t, cfg.App.Production())
	assert.Equal(t, "https://app.confera.io", cfg.App.FrontendURL)
	assert.Equal(t, 12, cfg.App.BcryptCost)
	assert.Equal(t, "client-123", cfg.Google.ClientID)
}

func TestLoad_NodeEnvFallback(t *testing.T) {
	setSecrets(t)
	os.Unsetenv("APP_ENV")
	t.Setenv("NODE_ENV", "production")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.App.Production())
}

func TestLoad_InvalidDuration(t *testing.T) {
	setSecrets(t)
	t.Setenv("JWT_ACCESS_EXPIRATION", "not-a-duration")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_EXPIRATION")
}

func TestLoad_BcryptCostTooLow(t *testing.T) {
	setSecrets(t)
	t.Setenv("BCRYPT_COST", "4")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"15m":  15 * time.Minute,
		"7d":   7 * 24 * time.Hour,
		"168h": 168 * time.Hour,
		" 1d ": 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := config.ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "xd", "-1d", "0m", "abc"} {
		_, err := config.ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	setSecrets(t)
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.1.7,fd00::/8")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Len(t, cfg.HTTP.TrustedProxies, 3)
	assert.Equal(t, "10.0.0.0/8", cfg.HTTP.TrustedProxies[0].String())
	assert.Equal(t, "192.168.1.7/32", cfg.HTTP.TrustedProxies[1].String())
	assert.Equal(t, "fd00::/8", cfg.HTTP.TrustedProxies[2].String())
}

func TestLoad_NoTrustedProxiesByDefault(t *testing.T) {
	setSecrets(t)
	t.Setenv("TRUSTED_PROXY_CIDRS", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestLoad_InvalidTrustedProxy(t *testing.T) {
	setSecrets(t)
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8,not-an-ip")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXY_CIDRS")
}
