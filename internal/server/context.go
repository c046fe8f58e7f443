package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
)

// ServerContext holds the process-wide collaborators shared by every MCP
// session: the Fitbit client, the token provider and the instrumentation.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	client  *fitbit.Client
	tokens  *fitbit.TokenProvider
	oauth   *fitbit.OAuth
	authURL string
	logger  *slog.Logger

	mu          sync.RWMutex
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	shutdown    bool
}

// ServerContextOptions configures NewServerContext.
type ServerContextOptions struct {
	Client *fitbit.Client
	Tokens *fitbit.TokenProvider
	OAuth  *fitbit.OAuth

	// AuthURL is where users are sent to (re)authorize Fitbit access.
	AuthURL string
	Logger  *slog.Logger
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts ServerContextOptions) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		client:  opts.Client,
		tokens:  opts.Tokens,
		oauth:   opts.OAuth,
		authURL: opts.AuthURL,
		logger:  logger,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// FitbitClient returns the shared Fitbit Web API client.
func (sc *ServerContext) FitbitClient() *fitbit.Client {
	return sc.client
}

// Tokens returns the token provider.
func (sc *ServerContext) Tokens() *fitbit.TokenProvider {
	return sc.tokens
}

// OAuth returns the Fitbit OAuth collaborator.
func (sc *ServerContext) OAuth() *fitbit.OAuth {
	return sc.oauth
}

// AuthURL returns the authorization entry point users are pointed at.
func (sc *ServerContext) AuthURL() string {
	return sc.authURL
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// SetMetrics sets the metrics recorder used by tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil when none is configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the tool audit logger.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil when none is configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
