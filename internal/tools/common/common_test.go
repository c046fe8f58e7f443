package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/server"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", fitbit.ErrNotAuthorized
	}
	return string(s), nil
}

// newServerContext returns a ServerContext whose Fitbit client talks to handler.
func newServerContext(t *testing.T, token string, handler http.HandlerFunc) *server.ServerContext {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sc := server.NewServerContext(context.Background(), server.ServerContextOptions{
		Client:  fitbit.NewClient(staticToken(token), fitbit.WithBaseURL(srv.URL)),
		AuthURL: "https://fit.example.com/auth",
	})
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}
