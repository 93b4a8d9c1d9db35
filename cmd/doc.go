// Package cmd implements the command-line interface for mstodo.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing Microsoft To Do tools
//   - auth: Sign in to Microsoft interactively and store tokens
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
