package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p13marc/netimpaird/internal/backend"
	"github.com/p13marc/netimpaird/internal/config"
	"github.com/p13marc/netimpaird/internal/logger"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the netimpaird backend",
	Long: `Start the netimpaird backend: namespace discovery, the interface
catalog, the TC state engine, the scenario executor, and the query API.

netimpaird requires CAP_NET_ADMIN (or root) to modify traffic control state
and to enter non-default network namespaces.

Examples:
  # Start with the default config location
  netimpaird start

  # Start with a custom config file
  netimpaird start --config /etc/netimpaird/config.yaml

  # Override via environment variable
  NETIMPAIRD_LOGGING_LEVEL=DEBUG netimpaird start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", true, "Run in the foreground")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("netimpaird starting",
		logger.Backend(cfg.Backend),
		logger.Version(0))
	logger.Info("configuration loaded", "source", configSource())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := backend.New(cfg)

	runDone := make(chan error, 1)
	go func() {
		runDone <- b.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, stopping")
		cancel()
		if err := <-runDone; err != nil {
			logger.Error("backend shutdown error", logger.Err(err))
			os.Exit(1)
		}
	case err := <-runDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("backend run error", logger.Err(err))
			os.Exit(1)
		}
	}

	logger.Info("netimpaird stopped")
	return nil
}

func configSource() string {
	if GetConfigFile() != "" {
		return GetConfigFile()
	}
	return "defaults"
}
