package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
)

const profileBody = `{"user":{"encodedId":"ABC123","displayName":"Sam","fullName":"Sam Doe","timezone":"Europe/Berlin","memberSince":"2019-01-01","weight":70.5}}`

func newContext(t *testing.T, authorized bool) *server.ServerContext {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != fitbit.ProfilePath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(profileBody))
	}))
	t.Cleanup(api.Close)

	store := fitbit.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))
	if authorized {
		require.NoError(t, store.Save(context.Background(), &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	}
	cfg := fitbit.NewConfig("id", "secret", "http://localhost:3000/callback")
	tokens := fitbit.NewTokenProvider(cfg, store)

	sc := server.NewServerContext(context.Background(), server.ServerContextOptions{
		Client:  fitbit.NewClient(tokens, fitbit.WithBaseURL(api.URL)),
		Tokens:  tokens,
		OAuth:   fitbit.NewOAuth(cfg, tokens),
		AuthURL: "http://localhost:3000/auth",
	})
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	var req mcp.ReadResourceRequest
	req.Params.URI = uri
	return req
}

func TestAuthStatus(t *testing.T) {
	for _, authorized := range []bool{false, true} {
		sc := newContext(t, authorized)
		contents, err := handleAuthStatus(context.Background(), readRequest(AuthStatusURI), sc)
		require.NoError(t, err)
		require.Len(t, contents, 1)

		text := contents[0].(*mcp.TextResourceContents)
		assert.Equal(t, AuthStatusURI, text.URI)

		var status AuthStatus
		require.NoError(t, json.Unmarshal([]byte(text.Text), &status))
		assert.True(t, status.Configured)
		assert.Equal(t, authorized, status.Authorized)
		assert.Equal(t, "http://localhost:3000/auth", status.AuthURL)
	}
}

func TestProfile(t *testing.T) {
	sc := newContext(t, true)
	contents, err := handleProfile(context.Background(), readRequest(ProfileURI), sc)
	require.NoError(t, err)

	var profile fitbit.Profile
	require.NoError(t, json.Unmarshal([]byte(contents[0].(*mcp.TextResourceContents).Text), &profile))
	assert.Equal(t, "ABC123", profile.User.EncodedID)
	assert.Equal(t, "Europe/Berlin", profile.User.Timezone)
}

func TestProfile_NotAuthorized(t *testing.T) {
	sc := newContext(t, false)
	_, err := handleProfile(context.Background(), readRequest(ProfileURI), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http://localhost:3000/auth")
}

func TestProfile_NoClient(t *testing.T) {
	sc := server.NewServerContext(context.Background(), server.ServerContextOptions{})
	t.Cleanup(func() { _ = sc.Shutdown() })

	_, err := handleProfile(context.Background(), readRequest(ProfileURI), sc)
	assert.ErrorIs(t, err, fitbit.ErrNotConfigured)
}
