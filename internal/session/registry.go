package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sourcegraph/conc/pool"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/jsonrpc"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/transport"
)

const (
	DefaultIdleTimeout  = 30 * time.Minute
	DefaultReapInterval = time.Minute

	shutdownConcurrency = 16
)

var (
	// ErrSessionNotFound is returned for a session identifier that is not,
	// or no longer, mapped.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoValidSession is returned for a request that names no session and
	// is not an initialize request.
	ErrNoValidSession = errors.New("no valid session")

	// ErrClosed is returned once the Registry has been closed.
	ErrClosed = errors.New("session registry closed")
)

// ServerFactory builds the MCP server for one new session.
type ServerFactory func() *mcpserver.MCPServer

// Options configures a Registry.
type Options struct {
	// IdleTimeout is how long a session without an attached stream may go
	// without activity before the reaper closes it. Zero disables reaping.
	IdleTimeout time.Duration

	// ReapInterval is how often the reaper runs. Zero means DefaultReapInterval.
	ReapInterval time.Duration

	// Transport is applied to every Transport the Registry creates. Its
	// Logger, Metrics and Clock default to the Registry's.
	Transport transport.Options

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Clock   clockwork.Clock
}

// Route is the outcome of RouteOrCreate.
type Route struct {
	Transport *transport.Transport

	// Created is set when the request was an initialize that created the
	// session. Response then holds the initialize result to send back.
	Created  bool
	Response json.RawMessage
}

// Registry owns every live session of the process.
type Registry struct {
	newServer ServerFactory
	opts      Options
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	clock     clockwork.Clock

	mu       sync.RWMutex
	sessions map[string]*transport.Transport
	closed   bool
}

// NewRegistry creates an empty Registry that builds one MCP server per
// session with newServer.
func NewRegistry(newServer ServerFactory, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = opts.Logger
	}
	if opts.Transport.Metrics == nil {
		opts.Transport.Metrics = opts.Metrics
	}
	if opts.Transport.Clock == nil {
		opts.Transport.Clock = opts.Clock
	}

	return &Registry{
		newServer: newServer,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		sessions:  make(map[string]*transport.Transport),
	}
}

// RouteOrCreate resolves the Transport for one POST body.
//
// With a sessionID, the mapped Transport is returned, or ErrSessionNotFound.
// A repeated initialize on a mapped session is routed like any other message
// and answered by the Transport. Without a sessionID, an initialize request
// creates a new session; anything else fails with ErrNoValidSession and
// leaves the Registry unchanged.
//
// When the initialize handshake itself is answered with a JSON-RPC error,
// the returned Route carries that response and the error wraps
// transport.ErrHandshakeFailed.
func (r *Registry) RouteOrCreate(ctx context.Context, sessionID string, body json.RawMessage) (*Route, error) {
	msg, err := jsonrpc.Peek(body)
	if err != nil {
		return nil, ErrNoValidSession
	}
	if sessionID != "" {
		t, ok := r.Lookup(sessionID)
		if !ok {
			return nil, ErrSessionNotFound
		}
		t.Touch()
		return &Route{Transport: t}, nil
	}

	if msg.Method != string(mcp.MethodInitialize) || !msg.IsRequest() {
		return nil, ErrNoValidSession
	}
	return r.create(ctx, body)
}

func (r *Registry) create(ctx context.Context, body json.RawMessage) (*Route, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	t := transport.New(r.newServer(), r.opts.Transport)
	resp, err := t.Handshake(ctx, body)
	if err != nil {
		t.Close()
		if errors.Is(err, transport.ErrHandshakeFailed) {
			return &Route{Response: resp}, fmt.Errorf("creating session: %w", err)
		}
		return nil, fmt.Errorf("creating session: %w", err)
	}

	id := t.SessionID()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, ErrClosed
	}
	r.sessions[id] = t
	r.mu.Unlock()

	// A transport that closes on its own must not stay mapped.
	t.OnClose(func() { r.forget(id) })

	r.metrics.RecordSessionCreated(ctx)
	r.logger.Info("session.created", logging.SessionID(id))

	return &Route{Transport: t, Created: true, Response: resp}, nil
}

// Lookup returns the live Transport for sessionID.
func (r *Registry) Lookup(sessionID string) (*transport.Transport, bool) {
	if sessionID == "" {
		return nil, false
	}

	r.mu.RLock()
	t, ok := r.sessions[sessionID]
	r.mu.RUnlock()

	if !ok || t.State() == transport.StateClosed {
		return nil, false
	}
	return t, true
}

// Release closes and forgets sessionID. Unknown or already released
// identifiers are a no-op.
func (r *Registry) Release(sessionID string) {
	r.release(sessionID, instrumentation.ReleaseReasonDeleted)
}

func (r *Registry) release(sessionID, reason string) bool {
	t, ok := r.remove(sessionID, reason)
	if ok {
		t.Close()
	}
	return ok
}

// forget drops sessionID after its Transport closed itself.
func (r *Registry) forget(sessionID string) {
	r.remove(sessionID, instrumentation.ReleaseReasonClosed)
}

func (r *Registry) remove(sessionID, reason string) (*transport.Transport, bool) {
	r.mu.Lock()
	t, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		r.metrics.RecordSessionReleased(context.Background(), reason)
		r.logger.Info("session.released", logging.SessionID(sessionID), slog.String("reason", reason))
	}
	return t, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close releases every session concurrently and rejects further creates.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	p := pool.New().WithMaxGoroutines(shutdownConcurrency)
	for _, id := range ids {
		p.Go(func() {
			r.release(id, instrumentation.ReleaseReasonShutdown)
		})
	}
	p.Wait()

	if len(ids) > 0 {
		r.logger.Info("session.registry.closed", slog.Int("released", len(ids)))
	}
}
