// Package server provides the MCP server context and the optional metrics
// and health endpoints for the mstodo application.
//
// ServerContext carries the shared dependencies of all tools: the token
// lifecycle manager, the Graph client built over it, and the metrics
// recorder. One Microsoft identity is served per process.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolated
// from the stdio transport. HealthChecker provides liveness and readiness
// handlers for deployments that run the server under an orchestrator.
package server
