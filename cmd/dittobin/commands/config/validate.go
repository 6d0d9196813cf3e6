package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobin/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittobin configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittobin config validate

  # Validate specific config file
  dittobin config validate --config /etc/dittobin/config.yaml`,
	RunE: runConfigValidate,
}

// warnings lists settings that are valid but probably unintended.
func warnings(cfg *config.Config) []string {
	var out []string
	if cfg.Store.Backend == "memory" {
		out = append(out, "store.backend is memory: blobs are lost on restart")
	}
	if cfg.Index.Type == "memory" {
		out = append(out, "index.type is memory: the path index is lost on restart and the next collection reclaims every blob")
	}
	if cfg.GC.IsEnabled() && cfg.GC.Interval > 0 && cfg.GC.Interval < cfg.Store.ReinsertWait*2 {
		out = append(out, "gc.interval is shorter than twice store.reinsert_wait")
	}
	if !cfg.API.IsEnabled() {
		out = append(out, "api is disabled: blobs can only be managed offline")
	}
	return out
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if w := warnings(cfg); len(w) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, msg := range w {
			_, _ = fmt.Fprintf(out, "  - %s\n", msg)
		}
	}

	maxSize := "unlimited"
	if cfg.Store.MaxBlobSize > 0 {
		maxSize = humanize.IBytes(cfg.Store.MaxBlobSize.Uint64())
	}
	gcMode := "disabled"
	if cfg.GC.IsEnabled() {
		gcMode = "every " + cfg.GC.Interval.String()
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Store backend:   %s\n", cfg.Store.Backend)
	_, _ = fmt.Fprintf(out, "  Max blob size:   %s\n", maxSize)
	_, _ = fmt.Fprintf(out, "  Path index:      %s\n", cfg.Index.Type)
	_, _ = fmt.Fprintf(out, "  Collector:       %s\n", gcMode)
	_, _ = fmt.Fprintf(out, "  API port:        %d\n", cfg.API.Port)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
