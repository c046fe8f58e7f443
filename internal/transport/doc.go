// Package transport binds one MCP session to HTTP.
//
// A Transport implements mcp-go's server.ClientSession. It owns the session's
// event log, turns POST bodies into MCP messages and their responses into
// JSON or one-shot SSE replies, and serves the standalone GET stream that
// carries server-initiated notifications. The GET stream is resumable: a
// client that reconnects with Last-Event-ID receives exactly the events it
// missed, then continues live on the same stream.
//
// States move Uninitialized -> Active on a successful initialize handshake
// and Active -> Closed on Close. A closed Transport rejects every request.
package transport
