package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semmidev/dumpvault/internal/app"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file without connecting to anything.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Database: %s at %s:%d\n", cfg.Database.Type, cfg.Database.Host, cfg.Database.Port)
	fmt.Fprintf(out, "  Databases: %v\n", cfg.Database.Databases)
	fmt.Fprintf(out, "  Backup dir: %s (compress: %t)\n", cfg.Backup.LocalPath, cfg.Backup.Compress)
	fmt.Fprintf(out, "  Retention: %d day(s), max %d backup(s)\n", cfg.Backup.RetentionDays, cfg.Backup.MaxBackups)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Storage targets:")
	for _, t := range cfg.Storage.Targets {
		fmt.Fprintf(out, "  %s (%s): enabled=%t\n", t.Name, t.Type, t.Enabled)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Email: %t, Telegram: %t\n", cfg.Notifications.Email.Enabled, cfg.Notifications.Telegram.Enabled)
	fmt.Fprintf(out, "Scheduler: enabled=%t cadence=%s\n", cfg.Scheduler.Enabled, cfg.Scheduler.Cadence)
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(out, "Metrics: %s\n", cfg.Metrics.Listen)
	}
	return nil
}
