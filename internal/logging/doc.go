// Package logging provides structured logging utilities for the mstodo
// application.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
// All output goes to stderr because the stdio MCP transport owns stdout.
//
// # Usage Patterns
//
// Log with the shared attribute constructors:
//
//	logger.Info("token refreshed",
//	    logging.Operation("refresh"),
//	    logging.Status("success"))
//
// # Security Considerations
//
// Tokens are never logged directly; use SanitizeToken to log a length
// indicator instead.
package logging
