package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvkernel/app"
	"github.com/kilianp07/agvkernel/config"
	"github.com/kilianp07/agvkernel/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "agvkernel",
	Short:        "AGV fleet control kernel",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file (empty reads K_ variables only)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig loads the configuration and installs the configured logger.
// The returned func flushes the log file.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closeLog, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, func() { _ = closeLog() }, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := svc.Run(ctx); err != nil {
		logger.New("main").Errorf("service stopped: %v", err)
		return err
	}
	return nil
}
