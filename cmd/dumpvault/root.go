package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/dumpvault/internal/app"
)

var (
	// Version is set at build time.
	Version = "dev"

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "dumpvault",
	Short: "Scheduled database backups with multi-destination replication",
	Long: `dumpvault dumps MySQL or PostgreSQL databases, compresses and verifies
the result, copies it to every configured storage target, prunes old
backups and reports the outcome by email or Telegram.`,
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "path to config file")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(authorizeGDriveCmd)
	rootCmd.AddCommand(validateCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newApp loads the config and wires the application. Callers must Shutdown it.
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	return application, nil
}
