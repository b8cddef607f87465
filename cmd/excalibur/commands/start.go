package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/api"
	"github.com/PhotonicGluon/Excalibur/pkg/config"
	"github.com/PhotonicGluon/Excalibur/pkg/metrics"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Excalibur server",
	Long: `Start the Excalibur server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/excalibur/config.yaml.

Examples:
  # Start with default config location
  excalibur start

  # Start with custom config file
  excalibur start --config /etc/excalibur/config.yaml

  # Start with environment variable overrides
  EXCALIBUR_LOGGING_LEVEL=DEBUG excalibur start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		"source", getConfigSource(GetConfigFile()),
		"log_level", cfg.Logging.Level,
	)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	}

	st, err := store.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}

	server, err := api.NewServer(cfg, st, api.BuildInfo{Version: Version, Commit: Commit})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}

// getConfigSource describes where the configuration came from for logging.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
