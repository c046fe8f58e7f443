package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/config"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
)

// loadConfig reads the env file named by --env-file and decodes the
// environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Everything goes to stderr; stdio
// mode uses text so stdout stays the protocol channel.
func newLogger(w io.Writer, jsonOutput, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// tokenStore opens the configured token backend. The returned close
// function is never nil.
func tokenStore(ctx context.Context, cfg *config.Config) (fitbit.TokenStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		store, err := fitbit.NewRedisTokenStoreFromURL(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, noop, fmt.Errorf("opening redis token store: %w", err)
		}
		return store, store.Close, nil
	default:
		path := cfg.TokenFile
		if path == "" {
			var err error
			if path, err = fitbit.DefaultTokenPath(); err != nil {
				return nil, noop, err
			}
		}
		return fitbit.NewFileTokenStore(path), noop, nil
	}
}

// fitbitStack is the OAuth client side of the server: config, token
// provider, authorization flow and API client.
type fitbitStack struct {
	tokens *fitbit.TokenProvider
	oauth  *fitbit.OAuth
	client *fitbit.Client
}

func newFitbitStack(cfg *config.Config, store fitbit.TokenStore, logger *slog.Logger, metrics *instrumentation.Metrics) fitbitStack {
	opts := []fitbit.Option{fitbit.WithLogger(logger), fitbit.WithMetrics(metrics)}

	oauthConfig := fitbit.NewConfig(cfg.FitbitClientID, cfg.FitbitClientSecret, cfg.CallbackURL(), opts...)
	tokens := fitbit.NewTokenProvider(oauthConfig, store, opts...)
	return fitbitStack{
		tokens: tokens,
		oauth:  fitbit.NewOAuth(oauthConfig, tokens, opts...),
		client: fitbit.NewClient(tokens, opts...),
	}
}
