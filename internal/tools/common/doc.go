// Package common provides shared helpers for the Fitbit MCP tools: the
// instrumented handler wrapper, argument validation and the mapping of
// Fitbit errors onto tool results.
package common
