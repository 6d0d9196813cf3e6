package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobin/internal/cli/output"
	"github.com/marmos91/dittobin/internal/cli/timeutil"
	"github.com/marmos91/dittobin/pkg/apiclient"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Report whether the daemon is running (from its PID file) and, through the
API, its health, backend latency, blob count and collector phase.`,
	Example: `  dittobin status
  dittobin status --api-port 9080 -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittobin/dittobin.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus is the result of the status command.
type ServerStatus struct {
	Running   bool   `json:"running" yaml:"running"`
	PID       int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`
	Message   string `json:"message" yaml:"message"`
	StartedAt string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`

	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Blobs   int    `json:"blobs" yaml:"blobs"`
	Latency string `json:"latency,omitempty" yaml:"latency,omitempty"`

	GCPhase    string `json:"gc_phase,omitempty" yaml:"gc_phase,omitempty"`
	GCRunID    string `json:"gc_run_id,omitempty" yaml:"gc_run_id,omitempty"`
	GCRuns     int    `json:"gc_runs" yaml:"gc_runs"`
	GCFailures int    `json:"gc_failures" yaml:"gc_failures"`
	GCLastErr  string `json:"gc_last_error,omitempty" yaml:"gc_last_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	status := ServerStatus{Message: "Server is not running"}
	if pid, running := isProcessRunning(pidPath); running {
		status.Running = true
		status.PID = pid
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	collectStatus(ctx, apiclient.NewLocal(statusAPIPort).WithTimeout(2*time.Second), &status)

	if format != output.FormatTable {
		return output.Print(os.Stdout, format, status)
	}
	printStatusTable(status)
	return nil
}

// collectStatus fills status from the API. Each endpoint is optional.
func collectStatus(ctx context.Context, c *apiclient.Client, status *ServerStatus) {
	live, err := c.Health(ctx)
	if err != nil {
		if status.Running {
			status.Message = "Server process exists but health check failed"
		}
		return
	}
	status.Running = true
	status.StartedAt = live.StartedAt
	status.Uptime = live.Uptime

	ready, err := c.Ready(ctx)
	if ready != nil {
		status.Backend = ready.Backend
		status.Blobs = ready.Records
		status.Latency = ready.Latency
		status.GCPhase = ready.GCPhase
	}
	switch {
	case err == nil:
		status.Healthy = true
		status.Message = "Server is running and healthy"
	case ready != nil:
		status.Message = fmt.Sprintf("Server is running but unhealthy: %v", err)
	default:
		status.Message = "Server is running but readiness check failed"
	}

	gcStatus, err := c.GCStatus(ctx)
	if err != nil {
		return
	}
	status.GCPhase = gcStatus.Phase.String()
	status.GCRuns = gcStatus.Runs
	status.GCFailures = gcStatus.Failed
	status.GCLastErr = gcStatus.LastErr
	if gcStatus.Run != nil {
		status.GCRunID = gcStatus.Run.ID
	}
}

func printStatusTable(status ServerStatus) {
	fmt.Printf("\ndittobin %s\n\n", Version)

	if !status.Running {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n\n  %s\n\n", status.Message)
		return
	}

	state := "\033[32m● Running\033[0m"
	if !status.Healthy {
		state = "\033[33m● Running (unhealthy)\033[0m"
	}
	pairs := [][2]string{{"  Status", state}}
	if status.PID != 0 {
		pairs = append(pairs, [2]string{"  PID", fmt.Sprint(status.PID)})
	}
	if status.StartedAt != "" {
		pairs = append(pairs, [2]string{"  Started", timeutil.FormatTime(status.StartedAt)})
	}
	if status.Uptime != "" {
		pairs = append(pairs, [2]string{"  Uptime", timeutil.FormatUptime(status.Uptime)})
	}
	if status.Backend != "" {
		pairs = append(pairs,
			[2]string{"  Backend", status.Backend + " (" + status.Latency + ")"},
			[2]string{"  Blobs", fmt.Sprint(status.Blobs)},
		)
	}
	if status.GCPhase != "" {
		phase := status.GCPhase
		if status.GCRunID != "" {
			phase += " (run " + status.GCRunID + ")"
		}
		pairs = append(pairs,
			[2]string{"  GC phase", phase},
			[2]string{"  GC runs", fmt.Sprintf("%d (%d failed)", status.GCRuns, status.GCFailures)},
		)
	}
	if status.GCLastErr != "" {
		pairs = append(pairs, [2]string{"  GC last error", status.GCLastErr})
	}
	_ = output.PrintKeyValues(os.Stdout, pairs)

	fmt.Printf("\n  %s\n\n", status.Message)
}
