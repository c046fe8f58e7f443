package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// Endpoint is Fitbit's OAuth 2.0 endpoint. Fitbit expects client
// credentials in an HTTP Basic header.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.fitbit.com/oauth2/authorize",
	TokenURL:  "https://api.fitbit.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// Scopes requested during authorization.
var Scopes = []string{
	"activity",
	"heartrate",
	"location",
	"nutrition",
	"profile",
	"settings",
	"sleep",
	"social",
	"weight",
}

// NewConfig builds the OAuth configuration for the given client credentials
// and redirect URI.
func NewConfig(clientID, clientSecret, redirectURL string, opts ...Option) *oauth2.Config {
	s := newSettings(opts)
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     s.endpoint,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}
}

// OAuth runs the authorization code flow and hands the resulting token to a
// TokenProvider.
type OAuth struct {
	config *oauth2.Config
	tokens *TokenProvider
	s      settings
}

// NewOAuth creates the authorization flow for config, storing tokens in tokens.
func NewOAuth(config *oauth2.Config, tokens *TokenProvider, opts ...Option) *OAuth {
	return &OAuth{config: config, tokens: tokens, s: newSettings(opts)}
}

// Configured reports whether client credentials are set.
func (o *OAuth) Configured() bool {
	return o.config != nil && o.config.ClientID != "" && o.config.ClientSecret != ""
}

// AuthCodeURL returns the Fitbit consent URL.
func (o *OAuth) AuthCodeURL() (string, error) {
	if !o.Configured() {
		return "", ErrNotConfigured
	}
	return o.config.AuthCodeURL(uuid.NewString()), nil
}

// Exchange trades an authorization code for a token and persists it.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !o.Configured() {
		return nil, ErrNotConfigured
	}

	tok, err := o.config.Exchange(withHTTPClient(ctx, o.s), code)
	if err != nil {
		o.s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, oauthError(err)
	}
	o.s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)

	if err := o.tokens.SetToken(ctx, tok); err != nil {
		return nil, err
	}

	attrs := []any{logging.Operation("oauth.exchange"), slog.String("token", logging.SanitizeToken(tok.AccessToken))}
	if userID, ok := tok.Extra("user_id").(string); ok && userID != "" {
		attrs = append(attrs, slog.String("fitbit_user", userID))
	}
	o.s.logger.Info("fitbit.authorized", attrs...)
	return tok, nil
}

func withHTTPClient(ctx context.Context, s settings) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// fitbitErrorBody is Fitbit's error envelope, which differs from RFC 6749.
type fitbitErrorBody struct {
	Errors []struct {
		ErrorType string `json:"errorType"`
		Message   string `json:"message"`
	} `json:"errors"`
}

func oauthError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &OAuthError{Err: err}
	}

	oe := &OAuthError{Code: re.ErrorCode, Description: re.ErrorDescription, Err: err}
	if re.Response != nil {
		oe.Status = re.Response.StatusCode
	}
	if oe.Code == "" {
		var body fitbitErrorBody
		if json.Unmarshal(re.Body, &body) == nil && len(body.Errors) > 0 {
			oe.Code = body.Errors[0].ErrorType
			oe.Description = strings.TrimSpace(body.Errors[0].Message)
		}
	}
	return oe
}
