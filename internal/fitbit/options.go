package fitbit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
)

type settings struct {
	httpClient    *http.Client
	metrics       *instrumentation.Metrics
	logger        *slog.Logger
	clock         clockwork.Clock
	baseURL       string
	endpoint      oauth2.Endpoint
	refreshWindow time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
		clock:         clockwork.NewRealClock(),
		baseURL:       DefaultAPIBaseURL,
		endpoint:      Endpoint,
		refreshWindow: DefaultRefreshWindow,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures the OAuth client, TokenProvider and Client.
type Option func(*settings)

// WithHTTPClient sets the client used for API and token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithMetrics records Fitbit API and OAuth metrics on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for token expiry checks.
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBaseURL points the API client somewhere other than api.fitbit.com.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithEndpoint overrides the OAuth endpoints.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(s *settings) { s.endpoint = e }
}

// WithRefreshWindow sets how long before expiry a token is refreshed.
func WithRefreshWindow(d time.Duration) Option {
	return func(s *settings) { s.refreshWindow = d }
}
