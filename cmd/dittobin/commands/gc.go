package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobin/internal/cli/output"
	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/pkg/apiclient"
	"github.com/marmos91/dittobin/pkg/config"
	"github.com/marmos91/dittobin/pkg/gc"
)

var (
	gcCycles  int
	gcOffline bool
	gcAsync   bool
	gcAPIPort int
	gcOutput  string
	gcTimeout time.Duration
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run garbage collection cycles",
	Long: `Run mark-and-sweep garbage collection cycles.

A blob that is no longer referenced by any artifact path is marked by the
first cycle that sees it unreferenced and deleted by the next one, so two
cycles are needed to reclaim it.

By default the cycles run inside the running server through its API. With
--offline the store and path index are opened directly from the configuration;
the server must not be running against the same store.

Examples:
  # Run one cycle on the running server and print the report
  dittobin gc

  # Reclaim everything unreferenced right now
  dittobin gc --cycles 2

  # Queue a cycle on the server's scheduler and return immediately
  dittobin gc --async

  # Collect while the server is stopped
  dittobin gc --offline --cycles 2 --config /etc/dittobin/config.yaml`,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().IntVarP(&gcCycles, "cycles", "n", 1, "Number of cycles to run back to back")
	gcCmd.Flags().BoolVar(&gcOffline, "offline", false, "Open the store directly instead of calling the server")
	gcCmd.Flags().BoolVar(&gcAsync, "async", false, "Queue a cycle on the server's scheduler and return")
	gcCmd.Flags().IntVar(&gcAPIPort, "api-port", 8080, "API server port")
	gcCmd.Flags().StringVarP(&gcOutput, "output", "o", "table", "Output format (table|json|yaml)")
	gcCmd.Flags().DurationVar(&gcTimeout, "timeout", time.Hour, "Maximum duration of each cycle")
}

func runGC(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(gcOutput)
	if err != nil {
		return err
	}
	if gcCycles < 1 {
		return fmt.Errorf("--cycles must be at least 1")
	}

	if gcOffline {
		if gcAsync {
			return fmt.Errorf("--async requires a running server")
		}
		return runGCOffline(cmd.Context(), format)
	}
	return runGCRemote(cmd.Context(), format)
}

func runGCRemote(ctx context.Context, format output.Format) error {
	client := apiclient.NewLocal(gcAPIPort).WithTimeout(gcTimeout)

	if gcAsync {
		phase, err := client.TriggerGC(ctx)
		if err != nil {
			return fmt.Errorf("failed to queue collection: %w", err)
		}
		fmt.Printf("Collection queued on the server scheduler (collector %s)\n", phase)
		return nil
	}

	for i := 1; i <= gcCycles; i++ {
		rep, err := client.RunGC(ctx)
		if err != nil {
			if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.IsConflict() {
				return fmt.Errorf("a collection is already in progress on the server")
			}
			if rep != nil {
				_ = printCycle(format, i, rep)
			}
			return fmt.Errorf("cycle %d failed: %w", i, err)
		}
		if err := printCycle(format, i, rep); err != nil {
			return err
		}
	}
	return nil
}

func runGCOffline(ctx context.Context, format output.Format) error {
	if pid, running := isProcessRunning(GetDefaultPidFile()); running {
		return fmt.Errorf("dittobin is running (PID %d); use 'dittobin gc' without --offline", pid)
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := config.BuildStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	index, err := config.BuildIndex(&cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to open path index: %w", err)
	}
	defer func() { _ = index.Close() }()

	collector := config.BuildCollector(store, index, &cfg.GC)

	for i := 1; i <= gcCycles; i++ {
		cycleCtx, cancel := context.WithTimeout(ctx, gcTimeout)
		rep, err := collector.RunCycle(cycleCtx)
		cancel()
		if err != nil {
			logger.Error("GC: offline cycle failed", "cycle", i, logger.Err(err))
			return fmt.Errorf("cycle %d failed: %w", i, err)
		}
		if err := printCycle(format, i, rep); err != nil {
			return err
		}
	}
	return nil
}

func printCycle(format output.Format, n int, rep *gc.Report) error {
	if rep == nil {
		return fmt.Errorf("cycle %d returned no report", n)
	}
	if format == output.FormatTable && gcCycles > 1 {
		fmt.Printf("Cycle %d/%d\n", n, gcCycles)
	}
	if err := output.PrintReport(os.Stdout, format, rep); err != nil {
		return err
	}
	if format == output.FormatTable {
		fmt.Println()
	}
	return nil
}
