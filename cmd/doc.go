// Package cmd implements the command-line interface for fitbit-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server over streamable HTTP or stdio
//   - auth: Authorize Fitbit access from the terminal
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
