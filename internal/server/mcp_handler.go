package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/jsonrpc"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/logging"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/session"
	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/transport"
)

// DefaultMaxBodyBytes caps a single POST /mcp body.
const DefaultMaxBodyBytes = 4 << 20

// MCPHandler serves POST, GET and DELETE on the MCP endpoint.
type MCPHandler struct {
	registry     *session.Registry
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewMCPHandler creates the MCP endpoint handler over registry.
func NewMCPHandler(registry *session.Registry, logger *slog.Logger, maxBodyBytes int64) *MCPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &MCPHandler{registry: registry, logger: logger, maxBodyBytes: maxBodyBytes}
}

func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.servePost(w, r)
	case http.MethodGet:
		h.serveGet(w, r)
	case http.MethodDelete:
		h.serveDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MCPHandler) servePost(w http.ResponseWriter, r *http.Request) {
	if !transport.IsJSONContent(r) {
		jsonrpc.WriteError(w, http.StatusUnsupportedMediaType, jsonrpc.CodeInvalidRequest,
			"Unsupported Media Type: Content-Type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonrpc.WriteError(w, http.StatusRequestEntityTooLarge, jsonrpc.CodeInvalidRequest, "Request body too large")
			return
		}
		jsonrpc.WriteError(w, http.StatusBadRequest, jsonrpc.CodeParseError, "Parse error: failed to read body")
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		jsonrpc.WriteError(w, http.StatusBadRequest, jsonrpc.CodeInvalidRequest, "Invalid Request: batch requests are not supported")
		return
	}
	if _, err := jsonrpc.Peek(trimmed); err != nil {
		jsonrpc.WriteError(w, http.StatusBadRequest, jsonrpc.CodeParseError, "Parse error: invalid JSON")
		return
	}

	sessionID := r.Header.Get(transport.HeaderSessionID)
	route, err := h.registry.RouteOrCreate(r.Context(), sessionID, trimmed)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrHandshakeFailed) && route != nil && route.Response != nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write(route.Response)
		return
	case errors.Is(err, session.ErrNoValidSession), errors.Is(err, session.ErrSessionNotFound):
		jsonrpc.WriteError(w, http.StatusBadRequest, jsonrpc.CodeNoValidSession, jsonrpc.MessageNoValidSession)
		return
	case errors.Is(err, session.ErrClosed):
		jsonrpc.WriteError(w, http.StatusServiceUnavailable, jsonrpc.CodeInternalError, "Server is shutting down")
		return
	default:
		h.logger.Error("mcp.route.failed", logging.SessionID(sessionID), logging.Err(err))
		jsonrpc.WriteError(w, http.StatusInternalServerError, jsonrpc.CodeInternalError, jsonrpc.MessageInternal)
		return
	}

	if route.Created {
		route.Transport.Respond(w, r, route.Response)
		return
	}
	route.Transport.ServePost(w, r, trimmed)
}

func (h *MCPHandler) serveGet(w http.ResponseWriter, r *http.Request) {
	t, ok := h.registry.Lookup(r.Header.Get(transport.HeaderSessionID))
	if !ok {
		http.Error(w, transport.MessageInvalidSession, http.StatusBadRequest)
		return
	}
	t.Touch()
	t.ServeStream(w, r)
}

func (h *MCPHandler) serveDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(transport.HeaderSessionID)
	if _, ok := h.registry.Lookup(id); !ok {
		http.Error(w, transport.MessageInvalidSession, http.StatusBadRequest)
		return
	}
	h.registry.Release(id)
	w.WriteHeader(http.StatusOK)
}
