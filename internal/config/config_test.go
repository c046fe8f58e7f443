package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"PORT", "BASE_URL", "RAILWAY_PUBLIC_DOMAIN", "RENDER_EXTERNAL_URL",
	"FITBIT_CLIENT_ID", "FITBIT_CLIENT_SECRET", "MCP_API_KEY", "MCP_API_KEYS",
	"TOKEN_STORE", "TOKEN_FILE", "REDIS_URL", "REDIS_KEY",
	"SESSION_IDLE_TIMEOUT", "SESSION_REAP_INTERVAL", "MAX_EVENTS_PER_STREAM",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUST_PROXY",
}

// clearEnv blanks every variable Load reads. envdecode treats an empty
// value as unset, so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, TokenStoreFile, cfg.TokenStore)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, time.Minute, cfg.SessionReapInterval)
	assert.Equal(t, 1000, cfg.MaxEventsPerStream)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.False(t, cfg.TrustProxy)
	assert.Empty(t, cfg.APIKeys)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
}

func TestLoad_FromEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"FITBIT_CLIENT_ID=abc\nFITBIT_CLIENT_SECRET=shh\nPORT=8080\nMCP_API_KEYS=k1, k2\nSESSION_IDLE_TIMEOUT=5m\n",
	), 0o600))

	// godotenv does not override variables already present, so unset the
	// ones the file provides.
	for _, k := range []string{"FITBIT_CLIENT_ID", "FITBIT_CLIENT_SECRET", "PORT", "MCP_API_KEYS", "SESSION_IDLE_TIMEOUT"} {
		require.NoError(t, os.Unsetenv(k))
	}
	t.Cleanup(func() {
		for _, k := range []string{"FITBIT_CLIENT_ID", "FITBIT_CLIENT_SECRET", "PORT", "MCP_API_KEYS", "SESSION_IDLE_TIMEOUT"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, []string{"k1", "k2"}, cfg.APIKeys)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_APIKeyListWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_API_KEY", "single")
	t.Setenv("MCP_API_KEYS", "a,b")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.APIKeys)
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name                      string
		explicit, railway, render string
		want                      string
	}{
		{"explicit wins", "https://fit.example.com/", "x.railway.app", "https://y.onrender.com", "https://fit.example.com"},
		{"railway", "", "x.up.railway.app", "https://y.onrender.com", "https://x.up.railway.app"},
		{"render", "", "", "https://y.onrender.com/", "https://y.onrender.com"},
		{"localhost", "", "", "", "http://localhost:4000"},
		{"whitespace ignored", "  ", "", "", "http://localhost:4000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveBaseURL(tt.explicit, tt.railway, tt.render, 4000))
		})
	}
}

func TestConfig_URLs(t *testing.T) {
	cfg := &Config{BaseURL: "https://fit.onrender.com"}
	assert.Equal(t, "https://fit.onrender.com/mcp", cfg.MCPURL())
	assert.Equal(t, "https://fit.onrender.com/auth", cfg.AuthURL())
	assert.Equal(t, "https://fit.onrender.com/callback", cfg.CallbackURL())
	assert.True(t, cfg.PubliclyHosted())

	cfg.BaseURL = "http://localhost:3000"
	assert.False(t, cfg.PubliclyHosted())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{FitbitClientID: "id", FitbitClientSecret: "secret", Port: 3000, TokenStore: TokenStoreFile}
	}

	require.NoError(t, valid().Validate())

	c := valid()
	c.FitbitClientSecret = ""
	assert.ErrorIs(t, c.Validate(), ErrMissingCredentials)

	c = valid()
	c.Port = 70000
	assert.Error(t, c.Validate())

	c = valid()
	c.TokenStore = "s3"
	assert.Error(t, c.Validate())

	c = valid()
	c.RateLimitBurst = -1
	assert.Error(t, c.Validate())
}
