// Command worker runs the engine's batch operations from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"warmintro/backend/internal/services"
	"warmintro/backend/pkg/config"
	"warmintro/backend/pkg/logger"
)

// manager is built once per invocation by the root command's pre-run.
var manager *services.ServiceManager

var rootCmd = &cobra.Command{
	Use:           "worker",
	Short:         "Batch jobs for the warm-intro relationship graph",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		manager, err = services.New(cmd.Context(), cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if manager != nil {
			manager.Close()
		}
		logger.Sync()
	},
}

func main() {
	registerCommands(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if manager != nil {
			manager.Close()
		}
		os.Exit(1)
	}
}
