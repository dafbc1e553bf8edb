package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/mailsync/internal/config"
	"github.com/kestrelworks/mailsync/internal/instrumentation"
	"github.com/kestrelworks/mailsync/internal/logging"
	"github.com/kestrelworks/mailsync/internal/server"
)

const (
	serverReadHeaderTimeout = 10 * time.Second
	serverIdleTimeout       = 60 * time.Second
	shutdownTimeout         = 30 * time.Second
	metricsStartupTimeout   = 5 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		httpAddr       string
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the extraction HTTP service",
		Long: `Start the long-lived HTTP service.

The service exposes:
  - POST /fetch: trigger a full extraction run
  - /healthz, /readyz: Kubernetes health probes
  - /metrics on a dedicated port (default :9090)

Each /fetch downloads the credential artifacts from the Drive handoff
folder, extracts message metadata from every authorized mailbox and
appends the rows to BigQuery. Only one run is in flight at a time;
concurrent triggers get a 409.

Configuration comes from the environment (PROJECT_ID, DATASET_ID,
TABLE_ID, DRIVE_FOLDER_ID, and optionally BUCKET_NAME, GMAIL_QUERY,
MAX_WORKERS, BATCH_SIZE, PORT). A .env file in the working directory
is honoured for development.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsConfig := metricsConfigFromEnv(MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}, cmd.Flags().Changed("metrics-enabled"), cmd.Flags().Changed("metrics-addr"))
			return runServe(debugMode, httpAddr, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address. Defaults to :$PORT (or :8080).")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// metricsConfigFromEnv applies METRICS_ENABLED and METRICS_ADDR on top
// of the flag defaults. An explicitly set flag wins over the
// environment.
func metricsConfigFromEnv(cfg MetricsConfig, enabledSet, addrSet bool) MetricsConfig {
	if !enabledSet {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			cfg.Enabled = v == "true"
		}
	}
	if !addrSet {
		if v := os.Getenv("METRICS_ADDR"); v != "" {
			cfg.Addr = v
		}
	}
	return cfg
}

func runServe(debugMode bool, httpAddr string, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.ValidateService(); err != nil {
		return err
	}
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", cfg.Port)
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
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
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(metricsStartupTimeout):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Wire the pipeline: Drive handoff folder, Gmail extraction,
	// BigQuery load. The GCS key bootstrap happens inside.
	p, err := buildPipeline(shutdownCtx, &cfg, provider.Metrics(), logger)
	if err != nil {
		return err
	}

	serverContext := server.NewServerContext(shutdownCtx, p)
	healthChecker := server.NewHealthChecker(serverContext)
	audit := instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)

	router := server.NewRouter(serverContext, healthChecker, provider.Metrics(), audit, logger)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting extraction service",
			slog.String("addr", httpAddr),
			logging.Folder(cfg.DriveFolderID),
			logging.Table(cfg.TableRef()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server stopped with error: %w", err)
	case <-shutdownCtx.Done():
	}

	// Graceful shutdown: stop accepting traffic, flip readiness, then
	// drain in-flight requests.
	logger.Info("shutting down")
	healthChecker.SetReady(false)
	_ = serverContext.Shutdown()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()

	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error("http server shutdown failed", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}

	return nil
}
