package logging

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyTool      = "tool"
	KeySession   = "session_id"
	KeyStream    = "stream_id"
	KeyEvent     = "event_id"
	KeyRemoteIP  = "remote_ip"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
)

// WithSession returns a logger bound to one MCP session.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(slog.String(KeySession, sessionID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// SessionID returns a slog attribute for the MCP session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(KeySession, id)
}

// StreamID returns a slog attribute for an SSE stream identifier.
func StreamID(id string) slog.Attr {
	return slog.String(KeyStream, id)
}

// EventID returns a slog attribute for an event log identifier.
func EventID(id string) slog.Attr {
	return slog.String(KeyEvent, id)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// RemoteIP returns a slog attribute with the caller address of r, without the port.
func RemoteIP(r *http.Request) slog.Attr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return slog.String(KeyRemoteIP, host)
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
