package fitbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// DefaultRefreshWindow is how long before expiry a token gets refreshed.
const DefaultRefreshWindow = 5 * time.Minute

// TokenProvider hands out a valid access token, refreshing and persisting
// the stored token as needed. Fitbit refresh tokens are single use, so
// refreshes are serialized and the rotated token is saved before use.
type TokenProvider struct {
	config *oauth2.Config
	store  TokenStore
	s      settings

	mu     sync.Mutex
	cached *oauth2.Token
}

// NewTokenProvider creates a provider backed by store.
func NewTokenProvider(config *oauth2.Config, store TokenStore, opts ...Option) *TokenProvider {
	return &TokenProvider{config: config, store: store, s: newSettings(opts)}
}

// AccessToken returns a bearer token valid for at least the refresh window.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Token returns the current token, refreshing it first if it expires within
// the refresh window.
func (p *TokenProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok := p.cached
	if tok == nil {
		loaded, err := p.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		tok = loaded
		p.cached = tok
	}

	if p.fresh(tok) {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, ErrNotAuthorized
	}

	refreshed, err := p.refresh(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			// The refresh token is dead; force a reload so a token saved by
			// a later /callback is picked up.
			p.cached = nil
		}
		return nil, err
	}
	return refreshed, nil
}

func (p *TokenProvider) fresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return p.s.clock.Now().Add(p.s.refreshWindow).Before(tok.Expiry)
}

func (p *TokenProvider) refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	src := p.config.TokenSource(withHTTPClient(ctx, p.s), &oauth2.Token{RefreshToken: tok.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		p.s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		p.s.logger.Warn("fitbit.token.refresh_failed", logging.Err(err))
		return nil, oauthError(err)
	}
	p.s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	p.cached = refreshed
	if err := p.store.Save(ctx, refreshed); err != nil {
		// The old refresh token is already spent. Keep serving from memory;
		// the next restart will need a new authorization.
		p.s.logger.Error("fitbit.token.save_failed", logging.Err(err))
	}
	p.s.logger.Debug("fitbit.token.refreshed", logging.Operation("oauth.refresh"))
	return refreshed, nil
}

// SetToken replaces the stored token.
func (p *TokenProvider) SetToken(ctx context.Context, tok *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Save(ctx, tok); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	p.cached = tok
	return nil
}

// Authorized reports whether a token is stored, without refreshing it.
func (p *TokenProvider) Authorized(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return true
	}
	tok, err := p.store.Load(ctx)
	if err != nil {
		return false
	}
	p.cached = tok
	return true
}
