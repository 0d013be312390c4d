package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var schedulerDisable bool

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Inspect or drive the backup scheduler",
	Long: `Inspect or drive the backup scheduler.

The scheduler lives inside a running process. "scheduler start" (or
"serve") runs it in the foreground, and it stops on SIGINT or SIGTERM,
so stopping it means interrupting that process (Ctrl-C, kill, or
systemctl stop). To let cron drive backups instead, install the line
printed by "scheduler crontab".`,
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler in the foreground until interrupted",
	RunE:  runServe,
}

var schedulerCrontabCmd = &cobra.Command{
	Use:   "crontab",
	Short: "Print a crontab entry that runs a backup on the configured cadence",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		cfgPath, err := filepath.Abs(configFile)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}

		line, err := application.Scheduler().Cadence().CrontabLine(fmt.Sprintf("%s --config %s backup", exe, cfgPath))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	},
}

var schedulerNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next scheduled run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		state := application.Scheduler().State()
		fmt.Fprintf(cmd.OutOrStdout(), "Cadence: %s\nNext run: %s\n", state.Cadence, state.NextRunString())
		return nil
	},
}

var schedulerRunNowCmd = &cobra.Command{
	Use:   "run-now",
	Short: "Fire the scheduled job immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		if err := application.Scheduler().RunNow(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ Backup run completed")
		return nil
	},
}

var schedulerConfigureCmd = &cobra.Command{
	Use:   "configure <cadence>",
	Short: "Check a cadence and show when it would fire",
	Long: `Check a cadence (daily@HH:MM, hourly, every-N-hours, weekly@HH:MM) against
the current configuration and print the next fire time. Persist it by
setting scheduler.cadence in the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		sched := application.Scheduler()
		if err := sched.Configure(args[0], !schedulerDisable); err != nil {
			return err
		}
		state := sched.State()
		fmt.Fprintf(cmd.OutOrStdout(), "Cadence: %s (enabled: %t)\nNext run: %s\n", state.Cadence, state.Enabled, state.NextRunString())
		return nil
	},
}

func init() {
	schedulerConfigureCmd.Flags().BoolVar(&schedulerDisable, "disable", false, "configure the scheduler as disabled")

	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerCrontabCmd)
	schedulerCmd.AddCommand(schedulerNextCmd)
	schedulerCmd.AddCommand(schedulerRunNowCmd)
	schedulerCmd.AddCommand(schedulerConfigureCmd)
}
