// Package fitbit is the Fitbit Web API collaborator: the OAuth 2.0 client
// used by /auth and /callback, token persistence with refresh, and a small
// authenticated HTTP client the MCP tools call.
package fitbit
