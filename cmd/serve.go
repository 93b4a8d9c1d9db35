package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mstodo/mstodo/internal/auth"
	"github.com/mstodo/mstodo/internal/config"
	"github.com/mstodo/mstodo/internal/graph"
	"github.com/mstodo/mstodo/internal/instrumentation"
	"github.com/mstodo/mstodo/internal/logging"
	"github.com/mstodo/mstodo/internal/server"
	"github.com/mstodo/mstodo/internal/tools/todo_tools"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		yolo           bool
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing Microsoft To Do
tools for AI assistants over stdio.

Safety Mode:
  By default, the server operates in read-only mode: tools that modify or
  destroy existing data are not registered. Use --yolo to enable them.

Authentication:
  Tokens are resolved from the MSTODO_ACCESS_TOKEN/MSTODO_REFRESH_TOKEN
  environment variables or from the stored credential file. Run
  'mstodo auth' once to sign in interactively. Expired tokens are refreshed
  automatically when MSTODO_CLIENT_ID and MSTODO_CLIENT_SECRET are set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("debug") {
				settings.Debug = debugMode
			}
			if cmd.Flags().Changed("metrics-enabled") {
				settings.Metrics.Enabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				settings.Metrics.Addr = metricsAddr
			}
			return runServe(settings, yolo)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (task updates, deletions). Default is read-only mode.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false, "Enable the Prometheus metrics server on a dedicated port. Can also use MSTODO_METRICS__ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use MSTODO_METRICS__ADDR env var.")

	return cmd
}

func runServe(settings *config.Settings, yolo bool) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.Setup(settings.LogFormat, settings.Debug)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Build the token lifecycle: store, refresher, manager. Host config
	// updates are best-effort and never block the lifecycle.
	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}
	refresher := auth.NewRefresher(logger)

	managerOpts := []auth.ManagerOption{
		auth.WithEnvLookup(ambientLookup(settings)),
	}
	if hostConfig, err := auth.NewHostConfig(settings.ServerName, logger); err != nil {
		logger.Warn("host config updates disabled", logging.Err(err))
	} else {
		managerOpts = append(managerOpts, auth.WithNotifier(hostConfig))
	}
	if provider.Enabled() {
		metrics := provider.Metrics()
		managerOpts = append(managerOpts, auth.WithRefreshHook(func(status string) {
			metrics.RecordTokenRefresh(context.Background(), status)
		}))
	}

	manager := auth.NewManager(store, refresher, auth.Credentials{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		TenantID:     settings.TenantID,
	}, logger, managerOpts...)

	clientOpts := []graph.ClientOption{}
	if settings.BaseURL != "" {
		clientOpts = append(clientOpts, graph.WithBaseURL(settings.BaseURL))
	}
	if provider.Enabled() {
		metrics := provider.Metrics()
		clientOpts = append(clientOpts, graph.WithOperationHook(func(operation, status string, elapsed time.Duration) {
			metrics.RecordGraphOperation(context.Background(), operation, status, elapsed)
		}))
	}
	graphClient := graph.NewClient(manager, logger, clientOpts...)

	serverContext := server.NewServerContext(shutdownCtx, manager, graphClient, provider.Metrics())

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if settings.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    settings.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			HealthChecker:           server.NewHealthChecker(serverContext),
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	defer func() {
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("error during metrics server shutdown", logging.Err(err))
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("mstodo", version,
		mcpserver.WithToolCapabilities(true),
	)

	// --yolo wins over the read_only setting
	readOnly := settings.ReadOnly
	if yolo {
		readOnly = false
	}
	if readOnly {
		logger.Info("starting server in read-only mode (use --yolo to enable write operations)")
	} else {
		logger.Info("starting server with write operations enabled")
	}

	if err := todo_tools.RegisterTodoTools(mcpSrv, serverContext, readOnly); err != nil {
		return fmt.Errorf("failed to register To Do tools: %w", err)
	}

	return runStdioServer(mcpSrv)
}

// ambientLookup serves the manager's token lookups from Settings so the
// config layer stays the single source of the ambient pair. Other keys fall
// through to the process environment.
func ambientLookup(settings *config.Settings) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case auth.EnvAccessToken:
			return settings.AccessToken, settings.AccessToken != ""
		case auth.EnvRefreshToken:
			return settings.RefreshToken, settings.RefreshToken != ""
		}
		return os.LookupEnv(key)
	}
}

// openStore returns the credential store, honoring the token_file override.
func openStore(settings *config.Settings) (*auth.Store, error) {
	if settings.TokenFile != "" {
		return auth.NewStoreAt(settings.TokenFile, "tokens.json"), nil
	}
	return auth.NewStore()
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
