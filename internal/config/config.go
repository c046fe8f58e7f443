// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/auth"
)

// Token store backends.
const (
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

// ErrMissingCredentials is returned by Validate when the Fitbit client
// credentials are not set.
var ErrMissingCredentials = errors.New("FITBIT_CLIENT_ID and FITBIT_CLIENT_SECRET must be set")

// Config is the decoded process environment.
type Config struct {
	Port                int    `env:"PORT,default=3000"`
	BaseURL             string `env:"BASE_URL"`
	RailwayPublicDomain string `env:"RAILWAY_PUBLIC_DOMAIN"`
	RenderExternalURL   string `env:"RENDER_EXTERNAL_URL"`

	FitbitClientID     string `env:"FITBIT_CLIENT_ID"`
	FitbitClientSecret string `env:"FITBIT_CLIENT_SECRET"`

	APIKey     string `env:"MCP_API_KEY"`
	APIKeyList string `env:"MCP_API_KEYS"`

	TokenStore string `env:"TOKEN_STORE,default=file"`
	TokenFile  string `env:"TOKEN_FILE"`
	RedisURL   string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	RedisKey   string `env:"REDIS_KEY,default=fitbit-mcp:token"`

	SessionIdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT,default=30m"`
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL,default=1m"`
	MaxEventsPerStream  int           `env:"MAX_EVENTS_PER_STREAM,default=1000"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=20"`
	TrustProxy     bool    `env:"TRUST_PROXY,default=false"`

	// APIKeys is the resolved key set; empty disables the auth gate.
	APIKeys []string
}

// Load reads envFile (a missing file is ignored) and decodes the
// environment into a normalized Config. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Normalize resolves the public base URL and API key set.
func (c *Config) Normalize() {
	c.BaseURL = ResolveBaseURL(c.BaseURL, c.RailwayPublicDomain, c.RenderExternalURL, c.Port)
	c.APIKeys = auth.KeysFromEnv(c.APIKey, c.APIKeyList)
	c.TokenStore = strings.ToLower(strings.TrimSpace(c.TokenStore))
	if c.TokenStore == "" {
		c.TokenStore = TokenStoreFile
	}
}

// ResolveBaseURL picks the first of an explicit base URL, a Railway public
// domain, a Render external URL, or localhost on port. Trailing slashes are
// trimmed.
func ResolveBaseURL(explicit, railwayDomain, renderURL string, port int) string {
	var base string
	switch {
	case strings.TrimSpace(explicit) != "":
		base = strings.TrimSpace(explicit)
	case strings.TrimSpace(railwayDomain) != "":
		base = "https://" + strings.TrimSpace(railwayDomain)
	case strings.TrimSpace(renderURL) != "":
		base = strings.TrimSpace(renderURL)
	default:
		base = "http://localhost:" + strconv.Itoa(port)
	}
	return strings.TrimRight(base, "/")
}

// Validate reports configuration the HTTP and stdio servers cannot run without.
func (c *Config) Validate() error {
	if c.FitbitClientID == "" || c.FitbitClientSecret == "" {
		return ErrMissingCredentials
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	switch c.TokenStore {
	case TokenStoreFile, TokenStoreRedis:
	default:
		return fmt.Errorf("invalid TOKEN_STORE %q, must be one of: file, redis", c.TokenStore)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// MCPURL is the public URL of the MCP endpoint.
func (c *Config) MCPURL() string { return c.BaseURL + "/mcp" }

// AuthURL is the public URL that starts the Fitbit authorization flow.
func (c *Config) AuthURL() string { return c.BaseURL + "/auth" }

// CallbackURL is the OAuth redirect URI registered with Fitbit.
func (c *Config) CallbackURL() string { return c.BaseURL + "/callback" }

// PubliclyHosted reports whether the base URL points at a known public PaaS.
func (c *Config) PubliclyHosted() bool {
	return strings.Contains(c.BaseURL, "onrender.com") || strings.Contains(c.BaseURL, "railway.app")
}
