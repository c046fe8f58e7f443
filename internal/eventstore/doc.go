// Package eventstore records outbound MCP messages per SSE stream so that a
// client reconnecting with Last-Event-ID can resume exactly where it left off.
//
// Event identifiers have the form "<streamID>_<seq>", where seq is a fixed
// width hex counter that only moves forward within a Store. Identifiers sort
// in emission order within a stream and carry their stream as a prefix.
package eventstore
