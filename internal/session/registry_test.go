package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/transport"
)

const (
	initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`
	toolsListBody  = `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
)

func newServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("test", "0.0.1", mcpserver.WithToolCapabilities(true))
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := NewRegistry(newServer, opts)
	t.Cleanup(r.Close)
	return r
}

func create(t *testing.T, r *Registry) *transport.Transport {
	t.Helper()
	route, err := r.RouteOrCreate(context.Background(), "", json.RawMessage(initializeBody))
	require.NoError(t, err)
	require.True(t, route.Created)
	return route.Transport
}

func TestRouteOrCreate_Initialize(t *testing.T) {
	r := newTestRegistry(t, Options{})

	route, err := r.RouteOrCreate(context.Background(), "", json.RawMessage(initializeBody))
	require.NoError(t, err)
	require.True(t, route.Created)
	assert.Contains(t, string(route.Response), `"serverInfo"`)

	id := route.Transport.SessionID()
	require.NotEmpty(t, id)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Same(t, route.Transport, got)
	assert.Equal(t, transport.StateActive, got.State())

	again, err := r.RouteOrCreate(context.Background(), id, json.RawMessage(toolsListBody))
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Same(t, route.Transport, again.Transport)
}

func TestRouteOrCreate_Rejections(t *testing.T) {
	r := newTestRegistry(t, Options{})
	create(t, r)

	tests := []struct {
		name      string
		sessionID string
		body      string
		wantErr   error
	}{
		{"unknown session", "does-not-exist", toolsListBody, ErrSessionNotFound},
		{"no session, not initialize", "", toolsListBody, ErrNoValidSession},
		{"no session, notification", "", `{"jsonrpc":"2.0","method":"initialize"}`, ErrNoValidSession},
		{"initialize with unknown session id", "does-not-exist", initializeBody, ErrSessionNotFound},
		{"malformed body", "", `{"jsonrpc":`, ErrNoValidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := r.RouteOrCreate(context.Background(), tt.sessionID, json.RawMessage(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, route)
			assert.Equal(t, 1, r.Len(), "registry must be unchanged")
		})
	}
}

func TestRouteOrCreate_InitializeOnMappedSession(t *testing.T) {
	r := newTestRegistry(t, Options{})
	existing := create(t, r)

	route, err := r.RouteOrCreate(context.Background(), existing.SessionID(), json.RawMessage(initializeBody))
	require.NoError(t, err)
	assert.Same(t, existing, route.Transport)
	assert.False(t, route.Created)

	_, err = route.Transport.Handle(context.Background(), json.RawMessage(initializeBody))
	assert.ErrorIs(t, err, transport.ErrAlreadyInitialized)
	assert.Equal(t, 1, r.Len())
}

func TestRouteOrCreate_HandshakeError(t *testing.T) {
	r := newTestRegistry(t, Options{})

	route, err := r.RouteOrCreate(context.Background(), "",
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":"bogus"}`))
	require.ErrorIs(t, err, transport.ErrHandshakeFailed)
	require.NotNil(t, route)
	assert.Nil(t, route.Transport)
	assert.Contains(t, string(route.Response), `"error"`)
	assert.Equal(t, 0, r.Len())
}

func TestRouteOrCreate_ConcurrentCreates(t *testing.T) {
	r := newTestRegistry(t, Options{})

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan string, n)
	errs := make(chan error, n+1)

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			route, err := r.RouteOrCreate(context.Background(), "", json.RawMessage(initializeBody))
			if err != nil {
				errs <- err
				return
			}
			// Whatever the registry hands out must already be past the handshake.
			if route.Transport.State() != transport.StateActive {
				errs <- fmt.Errorf("session %s published in state %s", route.Transport.SessionID(), route.Transport.State())
				return
			}
			ids <- route.Transport.SessionID()
		}()
	}

	// Readers racing the writers must never see a half-built transport.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.mu.RLock()
			snapshot := make([]*transport.Transport, 0, len(r.sessions))
			for _, tr := range r.sessions {
				snapshot = append(snapshot, tr)
			}
			r.mu.RUnlock()
			for _, tr := range snapshot {
				if tr.State() == transport.StateUninitialized {
					errs <- fmt.Errorf("observed uninitialized transport")
					return
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, r.Len())
}

func TestRelease_Idempotent(t *testing.T) {
	r := newTestRegistry(t, Options{})
	tr := create(t, r)
	id := tr.SessionID()

	r.Release(id)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, transport.StateClosed, tr.State())

	r.Release(id)
	r.Release("never-existed")
	assert.Equal(t, 0, r.Len())

	_, err := r.RouteOrCreate(context.Background(), id, json.RawMessage(toolsListBody))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTransportCloseForgetsSession(t *testing.T) {
	r := newTestRegistry(t, Options{})
	tr := create(t, r)

	tr.Close()

	_, ok := r.Lookup(tr.SessionID())
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestReap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newTestRegistry(t, Options{IdleTimeout: 30 * time.Minute, Clock: clock})

	stale := create(t, r)
	active := create(t, r)

	clock.Advance(20 * time.Minute)
	_, err := r.RouteOrCreate(context.Background(), active.SessionID(), json.RawMessage(toolsListBody))
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, r.Reap())

	_, ok := r.Lookup(stale.SessionID())
	assert.False(t, ok)
	_, ok = r.Lookup(active.SessionID())
	assert.True(t, ok)
	assert.Equal(t, transport.StateClosed, stale.State())
}

func TestReap_SkipsOpenStreams(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newTestRegistry(t, Options{
		IdleTimeout: time.Minute,
		Clock:       clock,
		Transport:   transport.Options{KeepAlive: -1},
	})
	tr := create(t, r)

	ts := httptest.NewServer(http.HandlerFunc(tr.ServeStream))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, tr.StreamOpen, 5*time.Second, 10*time.Millisecond)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, r.Reap())
	assert.Equal(t, 1, r.Len())
}

func TestReap_Disabled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newTestRegistry(t, Options{Clock: clock})
	create(t, r)

	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, r.Reap())
	assert.Equal(t, 1, r.Len())
}

func TestStartReaper(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newTestRegistry(t, Options{IdleTimeout: time.Minute, ReapInterval: time.Minute, Clock: clock})
	create(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartReaper(ctx)

	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return r.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClose(t *testing.T) {
	r := newTestRegistry(t, Options{})
	var transports []*transport.Transport
	for range 3 {
		transports = append(transports, create(t, r))
	}

	r.Close()

	assert.Equal(t, 0, r.Len())
	for _, tr := range transports {
		assert.Equal(t, transport.StateClosed, tr.State())
	}

	_, err := r.RouteOrCreate(context.Background(), "", json.RawMessage(initializeBody))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := newTestRegistry(t, Options{})
	b := newTestRegistry(t, Options{})

	tr := create(t, a)
	_, ok := b.Lookup(tr.SessionID())
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}
