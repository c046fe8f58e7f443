// Package server hosts the HTTP side of the Fitbit MCP server.
//
// # Key Components
//
// ServerContext carries the shared Fitbit client, token provider and OAuth
// collaborator that every tool handler reads from.
//
// HTTPServer mounts the streamable MCP endpoint at /mcp together with the
// Fitbit OAuth routes (/auth, /callback), the status document at / and the
// health probes. Requests to /mcp pass the per-IP RateLimiter first and
// the API key gate second before reaching the session registry.
//
// MetricsServer exposes the Prometheus scrape endpoint on its own listener.
package server
