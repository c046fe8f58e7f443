// Package jsonrpc holds the JSON-RPC 2.0 error envelope the HTTP layer writes
// when a request never reaches the MCP server.
package jsonrpc

import (
	"encoding/json"
	"net/http"
)

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// ErrorCode is a JSON-RPC error code.
type ErrorCode int

const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeInternalError  ErrorCode = -32603

	// CodeNoValidSession signals an unknown or missing session for a
	// non-initialize request.
	CodeNoValidSession ErrorCode = -32000

	// CodeUnauthorized signals a missing or rejected API key.
	CodeUnauthorized ErrorCode = -32001
)

// Standard messages used by the HTTP layer.
const (
	MessageNoValidSession     = "Bad Request: No valid session ID"
	MessageAlreadyInitialized = "Invalid Request: Server already initialized"
	MessageUnauthorized       = "Unauthorized: Invalid or missing API key"
	MessageInternal           = "Internal server error"
)

// Error is the error member of a response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is a response carrying an error and, because the request id is
// unknown at this layer, a null id.
type ErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   Error           `json:"error"`
	ID      json.RawMessage `json:"id"`
}

// NewErrorResponse builds an envelope with a null id.
func NewErrorResponse(code ErrorCode, message string) ErrorResponse {
	return ErrorResponse{
		JSONRPC: Version,
		Error:   Error{Code: code, Message: message},
		ID:      json.RawMessage("null"),
	}
}

// WriteError writes an error envelope with the given HTTP status.
func WriteError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(code, message))
}

// Message is the subset of a JSON-RPC message needed for routing.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// IsRequest reports whether m expects a response.
func (m Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0 && string(m.ID) != "null"
}

// IsError reports whether m is an error response.
func (m Message) IsError() bool {
	return len(m.Error) > 0 && string(m.Error) != "null"
}

// Peek decodes the routing fields of raw.
func Peek(raw json.RawMessage) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
