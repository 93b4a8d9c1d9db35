// Package instrumentation provides OpenTelemetry metrics for the mstodo
// MCP server.
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Microsoft Graph Metrics:
//   - graph_api_operations_total: Counter of Graph operations by operation and status
//   - graph_api_operation_duration_seconds: Histogram of Graph operation durations
//
// Token Lifecycle Metrics:
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, stdout, default: prometheus)
//   - OTEL_SERVICE_NAME: Service name (default: mstodo)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordToolInvocation(ctx, "todo_list_tasks", "success", time.Since(start))
package instrumentation
