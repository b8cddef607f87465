// Package commands implements the CLI commands for the Excalibur server.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = ""

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "excalibur",
	Short: "Excalibur - end-to-end encrypted personal vault server",
	Long: `Excalibur is the backend for an end-to-end encrypted personal file vault.
Clients authenticate over an SRP handshake, never sending passwords, and every
stored file is an opaque encrypted container the server cannot read.

Use "excalibur [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/excalibur/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(userCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
