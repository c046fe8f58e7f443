// Package resources provides MCP resources describing the connected Fitbit
// account. Resources are read-only documents that MCP clients can fetch
// without calling a tool: the authorization status and the account profile.
package resources
