package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/auth"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/config"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/resources"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/session"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/tools/fitbit_tools"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/transport"
)

// Transport names accepted by --transport.
const (
	transportStdio = "stdio"
	transportHTTP  = "streamable-http"
)

const shutdownTimeout = 30 * time.Second

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveFlags are the serve command's flags. Each one overrides its
// environment variable only when given on the command line.
type serveFlags struct {
	debug      bool
	transport  string
	port       int
	baseURL    string
	tokenStore string
	tokenFile  string
	trustProxy bool
	metrics    MetricsConfig
}

// apply layers explicitly set flags over cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("port") {
		cfg.Port = f.port
		if !changed("base-url") {
			cfg.BaseURL = config.ResolveBaseURL(os.Getenv("BASE_URL"), cfg.RailwayPublicDomain, cfg.RenderExternalURL, cfg.Port)
		}
	}
	if changed("base-url") {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(f.baseURL), "/")
	}
	if changed("token-store") {
		cfg.TokenStore = strings.ToLower(strings.TrimSpace(f.tokenStore))
	}
	if changed("token-file") {
		cfg.TokenFile = f.tokenFile
	}
	if changed("trust-proxy") {
		cfg.TrustProxy = f.trustProxy
	}
	if !changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			f.metrics.Addr = addr
		}
	}
	if !changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "false" {
		f.metrics.Enabled = false
	}
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing Fitbit data tools.

Supports multiple transport types:
  - streamable-http: Streamable HTTP transport on /mcp (default)
  - stdio: Standard input/output, for MCP clients that launch the server

Configuration:
  Values are read from the environment (and a .env file, see --env-file).
  Flags override the matching environment variable only when set.

    FITBIT_CLIENT_ID, FITBIT_CLIENT_SECRET   Fitbit app credentials (required)
    PORT, BASE_URL                           Listen port and public origin
    MCP_API_KEY, MCP_API_KEYS                API keys required on /mcp
    TOKEN_STORE=file|redis, TOKEN_FILE       Where the Fitbit token is kept
    REDIS_URL, REDIS_KEY                     Redis token store location

  Authorize Fitbit access by visiting <base-url>/auth, or run
  "fitbit-mcp auth" when the callback is not reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&flags.transport, "transport", transportHTTP, "Transport type: streamable-http or stdio")
	cmd.Flags().IntVar(&flags.port, "port", 3000, "HTTP listen port. Can also use PORT env var.")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Public base URL used for the OAuth callback and banner. Can also use BASE_URL env var. Example: https://fitbit.example.com")
	cmd.Flags().StringVar(&flags.tokenStore, "token-store", config.TokenStoreFile, "Fitbit token storage: file or redis. Can also use TOKEN_STORE env var.")
	cmd.Flags().StringVar(&flags.tokenFile, "token-file", "", "Path of the Fitbit token file (file store). Can also use TOKEN_FILE env var.")
	cmd.Flags().BoolVar(&flags.trustProxy, "trust-proxy", false, "Take the client IP from X-Forwarded-For / X-Real-IP for rate limiting. Can also use TRUST_PROXY env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&flags.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg *config.Config, flags serveFlags) error {
	httpMode := flags.transport != transportStdio
	logger := newLogger(os.Stderr, httpMode, flags.debug)
	slog.SetDefault(logger)

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("instrumentation.shutdown_failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	store, closeStore, err := tokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("token_store.close_failed", logging.Err(err))
		}
	}()

	fb := newFitbitStack(cfg, store, logger, metrics)
	serverContext := server.NewServerContext(ctx, server.ServerContextOptions{
		Client:  fb.client,
		Tokens:  fb.tokens,
		OAuth:   fb.oauth,
		AuthURL: cfg.AuthURL(),
		Logger:  logger,
	})
	defer func() {
		_ = serverContext.Shutdown()
	}()
	serverContext.SetMetrics(metrics)
	if instrConfig.AuditLogging.Enabled {
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	}

	newMCPServer := func() *mcpserver.MCPServer {
		s := mcpserver.NewMCPServer("fitbit-mcp", version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, false),
		)
		fitbit_tools.RegisterTools(s, serverContext)
		resources.RegisterFitbitResources(s, serverContext)
		return s
	}

	switch flags.transport {
	case transportStdio:
		return runStdioServer(newMCPServer(), logger)
	case transportHTTP:
		return runStreamableHTTPServer(ctx, cfg, flags, serverContext, newMCPServer, provider, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", flags.transport, transportHTTP, transportStdio)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	logger.Info("server.started", slog.String("transport", transportStdio))
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	flags serveFlags,
	serverContext *server.ServerContext,
	newMCPServer session.ServerFactory,
	provider *instrumentation.Provider,
	logger *slog.Logger,
) error {
	metrics := provider.Metrics()

	registry := session.NewRegistry(newMCPServer, session.Options{
		IdleTimeout:  cfg.SessionIdleTimeout,
		ReapInterval: cfg.SessionReapInterval,
		Transport: transport.Options{
			MaxEventsPerStream: cfg.MaxEventsPerStream,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	defer registry.Close()
	registry.StartReaper(ctx)

	limiter := server.NewRateLimiter(server.RateLimiterOptions{
		RPS:        cfg.RateLimitRPS,
		Burst:      cfg.RateLimitBurst,
		TrustProxy: cfg.TrustProxy,
		Metrics:    metrics,
		Logger:     logger,
	})
	limiter.StartCleanup(ctx)

	gate := auth.NewGate(cfg.APIKeys, auth.WithLogger(logger), auth.WithRecorder(metrics))
	health := server.NewHealthChecker(serverContext, registry, version)

	httpServer := server.NewHTTPServer(server.HTTPServerOptions{
		Context:  serverContext,
		Registry: registry,
		Gate:     gate,
		Limiter:  limiter,
		Health:   health,
		Addr:     cfg.Addr(),
		BaseURL:  cfg.BaseURL,
		Version:  version,
		Metrics:  metrics,
		Logger:   logger,
	})

	var metricsServer *server.MetricsServer
	if flags.metrics.Enabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    flags.metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics.server_failed", logging.Err(err))
			}
		}()
		logger.Info("metrics.started", slog.String("addr", metricsServer.Addr()))
	}

	server.Banner(logger, cfg.BaseURL, gate.Enabled(), cfg.PubliclyHosted())

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil {
			serverDone <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("server.stopping")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	logger.Info("server.stopped", slog.Int("open_sessions", registry.Len()))
	return errors.Join(errs...)
}
