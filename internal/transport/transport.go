package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/eventstore"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/instrumentation"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/jsonrpc"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
)

// HTTP headers used by the streamable HTTP transport.
const (
	HeaderSessionID   = "Mcp-Session-Id"
	HeaderLastEventID = "Last-Event-ID"
)

// MessageInvalidSession is the plain-text body for GET and DELETE requests
// that name no live session.
const MessageInvalidSession = "Invalid or missing session ID"

const (
	// DefaultKeepAlive is the interval between SSE keep-alive comments.
	DefaultKeepAlive = 25 * time.Second

	notificationBuffer = 100
)

var (
	// ErrClosed is returned for any operation on a closed Transport.
	ErrClosed = errors.New("transport closed")

	// ErrAlreadyInitialized is returned for an initialize request on an
	// Active Transport.
	ErrAlreadyInitialized = errors.New("transport already initialized")

	// ErrNotInitialized is returned by Handle before a successful Handshake.
	ErrNotInitialized = errors.New("transport not initialized")

	// ErrHandshakeFailed is returned by Handshake when the MCP server answers
	// initialize with an error. The error response is still returned.
	ErrHandshakeFailed = errors.New("initialize handshake failed")
)

// State is the lifecycle state of a Transport.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a Transport. The zero value is usable.
type Options struct {
	// KeepAlive is the SSE comment interval on the GET stream. Zero means
	// DefaultKeepAlive, negative disables keep-alives.
	KeepAlive time.Duration

	// MaxEventsPerStream caps each stream's event log, see eventstore.Options.
	MaxEventsPerStream int

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Clock   clockwork.Clock
}

// Transport is one MCP session served over streamable HTTP.
type Transport struct {
	server  *mcpserver.MCPServer
	events  *eventstore.Store
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	clock   clockwork.Clock

	keepAlive time.Duration

	id           string
	state        atomic.Int32
	initialized  atomic.Bool
	lastActivity atomic.Int64

	ctx           context.Context
	cancel        context.CancelFunc
	notifications chan mcp.JSONRPCNotification

	// inbound serializes message handling for the session.
	inbound sync.Mutex

	// streamMu guards the standalone stream and orders replay before live delivery.
	streamMu sync.Mutex
	streamID string
	live     *lockedWriteFlusher
	detach   chan struct{}

	closeOnce sync.Once
	onCloseMu sync.Mutex
	onClose   []func()
}

var _ mcpserver.ClientSession = (*Transport)(nil)

// New creates an Uninitialized Transport dispatching to server. Each session
// should get its own server instance.
func New(server *mcpserver.MCPServer, opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	keepAlive := opts.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		server:        server,
		events:        eventstore.New(eventstore.Options{MaxEventsPerStream: opts.MaxEventsPerStream}),
		logger:        logger,
		metrics:       opts.Metrics,
		clock:         clock,
		keepAlive:     keepAlive,
		ctx:           ctx,
		cancel:        cancel,
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
	}
	t.Touch()
	return t
}

// SessionID returns the session identifier, or "" before the handshake.
func (t *Transport) SessionID() string { return t.id }

// NotificationChannel is where the MCP server queues notifications for this session.
func (t *Transport) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return t.notifications
}

// Initialize is called by the MCP server when it accepts initialize.
func (t *Transport) Initialize() { t.initialized.Store(true) }

// Initialized reports whether the MCP server accepted initialize.
func (t *Transport) Initialized() bool { return t.initialized.Load() }

// State returns the current lifecycle state.
func (t *Transport) State() State { return State(t.state.Load()) }

// Touch marks the session as active now.
func (t *Transport) Touch() { t.lastActivity.Store(t.clock.Now().UnixNano()) }

// LastActivity returns the time of the last routed request or delivered event.
func (t *Transport) LastActivity() time.Time { return time.Unix(0, t.lastActivity.Load()) }

// StreamOpen reports whether a client is attached to the GET stream.
func (t *Transport) StreamOpen() bool {
	t.streamMu.Lock()
	defer t.streamMu.Unlock()
	return t.live != nil
}

// Events exposes the session's event log.
func (t *Transport) Events() *eventstore.Store { return t.events }

// Done is closed once the Transport is closed.
func (t *Transport) Done() <-chan struct{} { return t.ctx.Done() }

// OnClose registers fn to run once when the Transport closes. Registering on
// a closed Transport runs fn immediately.
func (t *Transport) OnClose(fn func()) {
	t.onCloseMu.Lock()
	if t.State() == StateClosed {
		t.onCloseMu.Unlock()
		fn()
		return
	}
	t.onClose = append(t.onClose, fn)
	t.onCloseMu.Unlock()
}

// Handshake mints the session identifier, registers the session with the MCP
// server and dispatches the initialize request. On success the Transport is
// Active and the initialize response is returned. On failure the session is
// unregistered and the Transport stays Uninitialized.
func (t *Transport) Handshake(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	t.inbound.Lock()
	defer t.inbound.Unlock()

	switch t.State() {
	case StateActive:
		return nil, ErrAlreadyInitialized
	case StateClosed:
		return nil, ErrClosed
	}

	t.id = uuid.NewString()
	t.logger = logging.WithSession(t.logger, t.id)

	if err := t.server.RegisterSession(ctx, t); err != nil {
		return nil, fmt.Errorf("registering session: %w", err)
	}

	payload, err := t.dispatch(ctx, raw)
	if err != nil {
		t.server.UnregisterSession(ctx, t.id)
		return nil, err
	}
	msg, err := jsonrpc.Peek(payload)
	if err != nil || payload == nil || msg.IsError() {
		t.server.UnregisterSession(ctx, t.id)
		return payload, ErrHandshakeFailed
	}

	t.state.Store(int32(StateActive))
	go t.pump()

	t.logger.Debug("transport.initialized")
	return payload, nil
}

// Handle dispatches one inbound message and returns the response, or nil for
// notifications and responses. Messages for one session are handled one at a
// time. A second initialize request fails with ErrAlreadyInitialized.
func (t *Transport) Handle(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	t.inbound.Lock()
	defer t.inbound.Unlock()

	switch t.State() {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateClosed:
		return nil, ErrClosed
	}
	if msg, err := jsonrpc.Peek(raw); err == nil && msg.IsRequest() && msg.Method == string(mcp.MethodInitialize) {
		return nil, ErrAlreadyInitialized
	}

	t.Touch()
	return t.dispatch(ctx, raw)
}

func (t *Transport) dispatch(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	resp := t.server.HandleMessage(t.server.WithContext(ctx, t), raw)
	if resp == nil {
		return nil, nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return payload, nil
}

// ServePost handles one already-decoded POST body and writes the reply.
func (t *Transport) ServePost(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	payload, err := t.Handle(r.Context(), body)
	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, ErrNotInitialized):
		jsonrpc.WriteError(w, http.StatusBadRequest, jsonrpc.CodeNoValidSession, jsonrpc.MessageNoValidSession)
		return
	case errors.Is(err, ErrAlreadyInitialized):
		jsonrpc.WriteError(w, http.StatusBadRequest, jsonrpc.CodeInvalidRequest, jsonrpc.MessageAlreadyInitialized)
		return
	case err != nil:
		t.logger.Error("transport.handle.failed", logging.Err(err))
		jsonrpc.WriteError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, jsonrpc.MessageInternal)
		return
	}
	t.Respond(w, r, payload)
}

// Respond writes payload as the reply to r: 202 with no body when payload is
// nil, a one-shot SSE frame when the client prefers event streams, JSON otherwise.
func (t *Transport) Respond(w http.ResponseWriter, r *http.Request, payload json.RawMessage) {
	if t.id != "" {
		w.Header().Set(HeaderSessionID, t.id)
	}

	if payload == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if !prefersEventStream(r) {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	streamID := eventstore.NewStreamID()
	eventID, err := t.events.Append(streamID, payload)
	if err != nil {
		// The session closed while the request was in flight. The client
		// still gets its response, just without an id to resume from.
		eventID = ""
	} else {
		t.metrics.RecordEventStored(r.Context())
	}

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: r.Context()}
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := writeSSEEvent(wf, eventID, payload); err != nil {
		t.logger.Warn("sse.write.failed", logging.StreamID(streamID), logging.Err(err))
	}
}

// ServeStream serves the standalone GET stream until the client goes away,
// the stream is replaced by Close, or the Transport closes.
func (t *Transport) ServeStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if t.State() != StateActive {
		http.Error(w, MessageInvalidSession, http.StatusBadRequest)
		return
	}
	if !acceptsEventStream(r) {
		http.Error(w, "Not Acceptable: client must accept text/event-stream", http.StatusNotAcceptable)
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	t.streamMu.Lock()
	if t.live != nil {
		t.streamMu.Unlock()
		http.Error(w, "Conflict: only one stream is allowed per session", http.StatusConflict)
		return
	}

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	w.Header().Set(HeaderSessionID, t.id)
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	outcome := instrumentation.StreamFresh
	replayed := 0
	if lastEventID := r.Header.Get(HeaderLastEventID); lastEventID != "" {
		streamID, err := t.events.ReplayAfter(lastEventID, func(eventID string, payload json.RawMessage) error {
			replayed++
			return writeSSEEvent(wf, eventID, payload)
		})
		if err != nil {
			t.streamMu.Unlock()
			t.logger.Warn("stream.replay.failed", logging.Err(err))
			return
		}
		if streamID != "" {
			t.streamID = streamID
			outcome = instrumentation.StreamResumed
		}
	}
	if outcome == instrumentation.StreamFresh {
		t.streamID = eventstore.NewStreamID()
	}
	streamID := t.streamID
	detach := make(chan struct{})
	t.live = wf
	t.detach = detach
	t.streamMu.Unlock()

	t.Touch()
	t.metrics.RecordStreamOpened(ctx, outcome, replayed)
	t.logger.Info("stream."+outcome, logging.StreamID(streamID), slog.Int("replayed", replayed))

	defer t.detachStream(wf)

	var keepAlive <-chan time.Time
	if t.keepAlive > 0 {
		ticker := t.clock.NewTicker(t.keepAlive)
		defer ticker.Stop()
		keepAlive = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-detach:
			return
		case <-t.ctx.Done():
			return
		case <-keepAlive:
			t.streamMu.Lock()
			err := writeSSEComment(wf, "ping")
			t.streamMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// detachStream removes wf as the live stream writer if it still is one.
func (t *Transport) detachStream(wf *lockedWriteFlusher) {
	t.streamMu.Lock()
	defer t.streamMu.Unlock()
	if t.live == wf {
		t.detachLocked()
	}
}

func (t *Transport) detachLocked() {
	t.live = nil
	if t.detach != nil {
		close(t.detach)
		t.detach = nil
	}
}

func (t *Transport) pump() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case n := <-t.notifications:
			t.deliver(n)
		}
	}
}

// deliver records n on the standalone stream and writes it to the attached
// client, if any. Notifications sent before any GET stream was opened have
// nowhere to be replayed from and are dropped.
func (t *Transport) deliver(n mcp.JSONRPCNotification) {
	payload, err := json.Marshal(n)
	if err != nil {
		t.logger.Error("notification.encode.failed", logging.Err(err))
		return
	}

	t.streamMu.Lock()
	defer t.streamMu.Unlock()

	if t.streamID == "" {
		t.logger.Debug("notification.dropped", slog.String("method", n.Method))
		return
	}

	eventID, err := t.events.Append(t.streamID, payload)
	if err != nil {
		return
	}
	t.metrics.RecordEventStored(t.ctx)

	if t.live == nil {
		return
	}
	if err := writeSSEEvent(t.live, eventID, payload); err != nil {
		t.logger.Debug("stream.write.failed", logging.EventID(eventID), logging.Err(err))
		t.detachLocked()
		return
	}
	t.Touch()
}

// Close moves the Transport to Closed, unregisters it from the MCP server,
// ends any attached stream, releases the event log and runs OnClose
// callbacks. Close is idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.onCloseMu.Lock()
		t.state.Store(int32(StateClosed))
		callbacks := t.onClose
		t.onClose = nil
		t.onCloseMu.Unlock()

		t.cancel()
		if t.id != "" {
			t.server.UnregisterSession(context.Background(), t.id)
		}

		t.streamMu.Lock()
		t.detachLocked()
		t.streamMu.Unlock()

		t.events.Release()

		for _, fn := range callbacks {
			fn()
		}
		t.logger.Debug("transport.closed")
	})
}
