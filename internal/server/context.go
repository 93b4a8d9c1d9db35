package server

import (
	"context"
	"sync"

	"github.com/mstodo/mstodo/internal/auth"
	"github.com/mstodo/mstodo/internal/graph"
	"github.com/mstodo/mstodo/internal/instrumentation"
)

// ServerContext holds the shared dependencies of the MCP server: the token
// manager, the Graph client built over it, and the metrics recorder. One
// identity is served per process, so there is exactly one of each.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	manager  *auth.Manager
	client   *graph.Client
	metrics  *instrumentation.Metrics
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, manager *auth.Manager, client *graph.Client, metrics *instrumentation.Metrics) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		manager: manager,
		client:  client,
		metrics: metrics,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// TokenManager returns the token lifecycle manager.
func (sc *ServerContext) TokenManager() *auth.Manager {
	return sc.manager
}

// GraphClient returns the Graph To Do client.
func (sc *ServerContext) GraphClient() *graph.Client {
	return sc.client
}

// Metrics returns the metrics recorder. May be nil when instrumentation is
// disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
