package fitbit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// memoryStore is an in-memory TokenStore for tests.
type memoryStore struct {
	mu    sync.Mutex
	tok   *oauth2.Token
	saves int
}

func (m *memoryStore) Load(context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil {
		return nil, ErrNotAuthorized
	}
	cp := *m.tok
	return &cp, nil
}

func (m *memoryStore) Save(_ context.Context, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tok = &cp
	m.saves++
	return nil
}

func (m *memoryStore) current() *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tok
}

// tokenServer mimics Fitbit's token endpoint.
type tokenServer struct {
	*httptest.Server
	refreshes atomic.Int32
	exchanges atomic.Int32

	// failWith, when set, is returned with 400 for every request.
	failWith string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"errors":[{"errorType":"invalid_client","message":"bad client"}],"success":false}`)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if ts.failWith != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, ts.failWith)
			return
		}

		var access, refresh string
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			ts.exchanges.Add(1)
			if r.Form.Get("code") != "good-code" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"errors":[{"errorType":"invalid_grant","message":"Authorization code invalid"}],"success":false}`)
				return
			}
			access, refresh = "access-1", "refresh-1"
		case "refresh_token":
			n := ts.refreshes.Add(1)
			access = "access-refreshed-" + string(rune('0'+n))
			refresh = "refresh-rotated-" + string(rune('0'+n))
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "Bearer",
			"expires_in":    28800,
			"user_id":       "ABC123",
			"scope":         "profile sleep",
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   "https://www.fitbit.com/oauth2/authorize",
		TokenURL:  ts.URL + "/oauth2/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(ts *tokenServer) *oauth2.Config {
	return NewConfig("client-id", "client-secret", "http://localhost:3000/callback", WithEndpoint(ts.endpoint()))
}

func requireNoToken(t *testing.T, store TokenStore) {
	t.Helper()
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, ErrNotAuthorized)
}
