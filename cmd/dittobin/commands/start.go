package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/internal/telemetry"
	"github.com/marmos91/dittobin/pkg/api"
	"github.com/marmos91/dittobin/pkg/config"
	"github.com/marmos91/dittobin/pkg/gc"
	"github.com/marmos91/dittobin/pkg/metrics"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dittobin server",
	Long: `Load the blob registry from the configured backend, open the artifact
path index, then serve the REST API and collect garbage on the configured
interval.

The server detaches into the background unless --foreground is given, which
is what systemd units and containers want.`,
	Example: `  dittobin start
  dittobin start --foreground --config /etc/dittobin/config.yaml
  DITTOBIN_GC_INTERVAL=10m dittobin start -f`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Stay attached to the terminal instead of daemonizing")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittobin/dittobin.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Daemon log file (default: $XDG_STATE_HOME/dittobin/dittobin.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deployment := map[string]string{
		"store.backend": cfg.Store.Backend,
		"index.type":    cfg.Index.Type,
	}

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittobin",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		Attributes:     deployment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is canceled by now
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittobin",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		Tags:           deployment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	fmt.Println("dittobin - deduplicating binary store")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	source := configFilePath()
	if source == "" {
		source = "defaults"
	}
	logger.Info("Configuration loaded", "source", source)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Metrics first: the store, index and collector pick up their
	// collectors at construction.
	metricsResult := config.InitializeMetrics(cfg)

	store, err := config.BuildStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Blob store close error", logger.Err(err))
		}
	}()

	index, err := config.BuildIndex(&cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to open path index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Error("Path index close error", logger.Err(err))
		}
	}()
	logger.Info("Path index opened", logger.IndexType(cfg.Index.Type))

	collector := config.BuildCollector(store, index, &cfg.GC)

	// A disabled collector still serves POST /gc?async=true.
	interval := cfg.GC.Interval
	if !cfg.GC.IsEnabled() {
		interval = 0
	}
	scheduler := gc.NewScheduler(collector, interval)
	scheduler.Start(ctx)
	defer scheduler.Stop(cfg.ShutdownTimeout)
	if interval > 0 {
		logger.Info("Garbage collector scheduled", "interval", interval, "properties", cfg.GC.Properties)
	} else {
		logger.Info("Garbage collector runs on demand only")
	}

	if source != "defaults" {
		watcher, err := config.NewWatcher(source, cfg)
		if err != nil {
			logger.Warn("Configuration hot reload disabled", "path", source, logger.Err(err))
		} else {
			watcher.OnReload(config.ApplyRuntime)
		}
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, fmt.Appendf(nil, "%d", os.Getpid()), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 2)
	running := 0

	if metricsResult.Server != nil {
		running++
		go func() { serverDone <- metricsResult.Server.Start(ctx) }()
	}

	if cfg.API.IsEnabled() {
		apiServer := api.NewServer(cfg.API, api.Dependencies{
			Store:     store,
			Index:     index,
			Collector: collector,
			Scheduler: scheduler,
			Metrics:   metrics.NewHTTPMetrics(),
		})
		running++
		go func() { serverDone <- apiServer.Start(ctx) }()
	} else {
		logger.Info("API server disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.", "blobs", store.Len())

	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		running--
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			runErr = err
		}
	}
	cancel()

	shutdownTimer := time.NewTimer(cfg.ShutdownTimeout)
	defer shutdownTimer.Stop()
	for ; running > 0; running-- {
		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error", logger.Err(err))
				runErr = errors.Join(runErr, err)
			}
		case <-shutdownTimer.C:
			logger.Warn("Shutdown timeout exceeded", "timeout", cfg.ShutdownTimeout)
			return runErr
		}
	}

	// A run left in Scanning or Stopped by an operator is abandoned.
	if p := collector.Phase(); p == gc.Scanning || p == gc.Stopped {
		_ = collector.Abort()
	}

	logger.Info("Server stopped gracefully")
	return runErr
}

// configFilePath returns the file the configuration was read from, or ""
// when running on defaults.
func configFilePath() string {
	if GetConfigFile() != "" {
		return GetConfigFile()
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
