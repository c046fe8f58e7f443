// Package logging provides structured logging helpers for the Fitbit MCP server.
//
// All components log through log/slog. This package keeps attribute names
// consistent (session_id, stream_id, tool, ...).
//
// Usage:
//
//	logger := logging.WithSession(slog.Default(), sessionID)
//	logger.Info("stream.resumed", logging.StreamID(streamID))
//
// Tokens and API keys must never be logged; use SanitizeToken when a value has
// to be referenced at all.
package logging
