// Package session maps MCP session identifiers to their transports.
//
// The Registry creates a Transport for each initialize request that carries
// no session identifier, publishes it only after the handshake completed, and
// forgets it when the session is deleted, closes, idles out, or the process
// shuts down. Lookups for unrelated sessions share a read lock and never
// block on one another.
package session
