package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/auth"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/session"
)

// Route paths.
const (
	PathStatus   = "/"
	PathMCP      = "/mcp"
	PathAuth     = "/auth"
	PathCallback = "/callback"
)

// HTTPServerOptions configures NewHTTPServer.
type HTTPServerOptions struct {
	Context  *ServerContext
	Registry *session.Registry
	Gate     *auth.Gate
	Limiter  *RateLimiter
	Health   *HealthChecker

	// Addr is the listen address, for example ":3000".
	Addr string
	// BaseURL is the public origin, without a trailing slash.
	BaseURL string
	Version string

	MaxBodyBytes int64
	Metrics      *instrumentation.Metrics
	Logger       *slog.Logger
}

// HTTPServer serves the MCP endpoint, the Fitbit OAuth routes, status and
// health checks on one listener.
type HTTPServer struct {
	opts       HTTPServerOptions
	logger     *slog.Logger
	httpServer *http.Server
}

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	MCP            string `json:"mcp"`
	Auth           string `json:"auth"`
	Status         string `json:"status"`
	APIKeyRequired bool   `json:"apiKeyRequired"`
}

// NewHTTPServer creates the HTTP server.
func NewHTTPServer(opts HTTPServerOptions) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gate == nil {
		opts.Gate = auth.NewGate(nil)
	}
	s := &HTTPServer{opts: opts, logger: opts.Logger}

	// No WriteTimeout: GET /mcp streams stay open indefinitely.
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if opts.Registry != nil {
		// Open GET streams never finish on their own; closing the sessions
		// ends them so Shutdown can drain.
		s.httpServer.RegisterOnShutdown(opts.Registry.Close)
	}
	return s
}

// Handler returns the full route table wrapped in recovery and metrics.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mcp := NewMCPHandler(s.opts.Registry, s.logger, s.opts.MaxBodyBytes)
	mux.Handle(PathMCP, s.opts.Limiter.Middleware(s.opts.Gate.Middleware(mcp)))

	mux.HandleFunc("GET "+PathAuth, s.handleAuth)
	mux.HandleFunc("GET "+PathCallback, s.handleCallback)
	mux.HandleFunc("GET /{$}", s.handleStatus)

	if s.opts.Health != nil {
		s.opts.Health.RegisterHealthEndpoints(mux)
	}

	var h http.Handler = mux
	h = AccessLog(s.logger, h)
	h = HTTPMetrics(s.opts.Metrics, h)
	return Recovery(s.logger, h)
}

// Start listens on Addr and blocks until Shutdown.
func (s *HTTPServer) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *HTTPServer) oauth() *fitbit.OAuth {
	if s.opts.Context == nil {
		return nil
	}
	return s.opts.Context.OAuth()
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StatusResponse{
		Name:           "Fitbit MCP Server",
		Version:        s.opts.Version,
		MCP:            s.opts.BaseURL + PathMCP,
		Auth:           s.opts.BaseURL + PathAuth,
		Status:         "running",
		APIKeyRequired: s.opts.Gate.Enabled(),
	})
}

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	oauth := s.oauth()
	if oauth == nil || !oauth.Configured() {
		http.Error(w, "Fitbit credentials not configured.", http.StatusInternalServerError)
		return
	}
	authURL, err := oauth.AuthCodeURL()
	if err != nil {
		s.logger.Error("oauth.authorize.failed", logging.Err(err))
		http.Error(w, "Fitbit credentials not configured.", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *HTTPServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Error: Authorization code missing.", http.StatusBadRequest)
		return
	}

	oauth := s.oauth()
	if oauth == nil || !oauth.Configured() {
		http.Error(w, "Fitbit credentials not configured.", http.StatusInternalServerError)
		return
	}
	if _, err := oauth.Exchange(r.Context(), code); err != nil {
		s.logger.Error("oauth.callback.failed", logging.Err(err))
		http.Error(w, "Error obtaining access token. Please try again.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := successPage.Execute(w, s.opts.BaseURL+PathMCP); err != nil {
		s.logger.Warn("oauth.callback.render_failed", logging.Err(err))
	}
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><title>Fitbit connected</title></head>
<body style="font-family: sans-serif; max-width: 36rem; margin: 4rem auto;">
<h1>Authorization successful</h1>
<p>Your Fitbit account is connected. You can close this window.</p>
<p>MCP endpoint: <code>{{.}}</code></p>
</body>
</html>
`))

// Banner logs the endpoints and warns when a public deployment has no API key.
func Banner(logger *slog.Logger, baseURL string, apiKeyRequired, publiclyHosted bool) {
	logger.Info("server.started",
		slog.String("base_url", baseURL),
		slog.String("mcp_endpoint", baseURL+PathMCP),
		slog.String("auth_url", baseURL+PathAuth),
		slog.Bool("api_key_required", apiKeyRequired))
	if !apiKeyRequired && publiclyHosted {
		logger.Warn(fmt.Sprintf("no MCP_API_KEY configured: health data at %s is publicly accessible", baseURL+PathMCP))
	}
}
