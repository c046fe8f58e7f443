package fitbit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenProvider_NoToken(t *testing.T) {
	ts := newTokenServer(t)
	p := NewTokenProvider(testConfig(ts), &memoryStore{})

	_, err := p.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.False(t, p.Authorized(context.Background()))
}

func TestTokenProvider_FreshTokenIsNotRefreshed(t *testing.T) {
	ts := newTokenServer(t)
	clock := clockwork.NewFakeClock()
	store := &memoryStore{tok: &oauth2.Token{AccessToken: "still-good", RefreshToken: "r", Expiry: clock.Now().Add(time.Hour)}}
	p := NewTokenProvider(testConfig(ts), store, WithClock(clock))

	access, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "still-good", access)
	assert.Equal(t, int32(0), ts.refreshes.Load())
	assert.True(t, p.Authorized(context.Background()))
}

func TestTokenProvider_RefreshesWithinWindow(t *testing.T) {
	ts := newTokenServer(t)
	clock := clockwork.NewFakeClock()
	store := &memoryStore{tok: &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: clock.Now().Add(10 * time.Minute)}}
	p := NewTokenProvider(testConfig(ts), store, WithClock(clock), WithLogger(quietLogger()))

	access, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", access, "ten minutes left is outside the refresh window")

	clock.Advance(6 * time.Minute)
	access, err = p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed-1", access)
	assert.Equal(t, "refresh-rotated-1", store.current().RefreshToken, "rotated refresh token is persisted")
	assert.Equal(t, 1, store.saves)
}

func TestTokenProvider_ConcurrentCallersRefreshOnce(t *testing.T) {
	ts := newTokenServer(t)
	store := &memoryStore{tok: &oauth2.Token{AccessToken: "expired", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute)}}
	p := NewTokenProvider(testConfig(ts), store, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			access, err := p.AccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "access-refreshed-1", access)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ts.refreshes.Load())
}

func TestTokenProvider_RevokedRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.failWith = `{"errors":[{"errorType":"invalid_grant","message":"Refresh token invalid"}],"success":false}`
	store := &memoryStore{tok: &oauth2.Token{AccessToken: "expired", RefreshToken: "spent", Expiry: time.Now().Add(-time.Minute)}}
	p := NewTokenProvider(testConfig(ts), store, WithLogger(quietLogger()))

	_, err := p.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrNotAuthorized)

	var oe *OAuthError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "invalid_grant", oe.Code)
}

func TestTokenProvider_ExpiredWithoutRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	store := &memoryStore{tok: &oauth2.Token{AccessToken: "expired", Expiry: time.Now().Add(-time.Minute)}}
	p := NewTokenProvider(testConfig(ts), store)

	_, err := p.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestTokenProvider_SetToken(t *testing.T) {
	ts := newTokenServer(t)
	store := &memoryStore{}
	p := NewTokenProvider(testConfig(ts), store)

	require.NoError(t, p.SetToken(context.Background(), &oauth2.Token{AccessToken: "set", RefreshToken: "r"}))
	access, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "set", access)
	assert.Equal(t, "set", store.current().AccessToken)
}
