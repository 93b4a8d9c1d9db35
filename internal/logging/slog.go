package logging

import (
	"fmt"
	"log/slog"
)

// Attribute keys shared across the codebase so log lines stay queryable.
const (
	KeyOperation = "operation"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
)

// Status values for the status attribute. Duplicated from the
// instrumentation package to avoid a circular import (instrumentation
// imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation returns the operation-name attribute.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns the tool-name attribute.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns the status attribute.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns the error attribute. A nil error yields an empty group,
// which slog omits from output, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken masks a token for logging. Only the length is reported;
// even a token prefix can leak useful material (JWT headers, for one).
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
