package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobin/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a dittobin configuration file holding every default value.

By default, the file is created at $XDG_CONFIG_HOME/dittobin/config.yaml.
Use --config to choose another path.

Examples:
  # Initialize with default location
  dittobin config init

  # Initialize with custom path
  dittobin config init --config /etc/dittobin/config.yaml

  # Force overwrite existing config
  dittobin config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	var configPath string
	var err error
	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Choose a store backend (store.backend) and a path index (index.type)")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: dittobin start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: dittobin start --config %s\n", configPath)
	return nil
}
