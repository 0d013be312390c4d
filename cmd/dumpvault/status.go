package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var statusDatabase string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database, backup, storage and scheduler health",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDatabase, "database", "", "show details for a single database")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	out := cmd.OutOrStdout()

	if statusDatabase != "" {
		info, err := application.DatabaseInfo(ctx, statusDatabase)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database: %s\n", info.Name)
		fmt.Fprintf(out, "  Size: %.2f MB\n", info.SizeMB)
		fmt.Fprintf(out, "  Tables: %d\n", info.TablesCount)
		fmt.Fprintf(out, "  Backups: %d\n", info.ArtifactCount)
		if info.Latest != nil {
			fmt.Fprintf(out, "  Latest: %s (%s)\n", info.Latest.Filename, info.Latest.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	report, err := application.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database (%s)\n", report.Database.Type)
	if report.Database.Connected {
		fmt.Fprintf(out, "  ✅ connected, %d database(s): %s\n", len(report.Database.Databases), strings.Join(report.Database.Databases, ", "))
	} else {
		fmt.Fprintf(out, "  ❌ unreachable: %s\n", report.Database.Error)
	}

	fmt.Fprintln(out, "Backups")
	fmt.Fprintf(out, "  count: %d, total: %.2f MB\n", report.Artifacts.Count, report.Artifacts.TotalSizeMB)
	if report.Artifacts.Newest != nil {
		fmt.Fprintf(out, "  newest: %s\n", report.Artifacts.Newest.Filename)
		fmt.Fprintf(out, "  oldest: %s\n", report.Artifacts.Oldest.Filename)
	}

	fmt.Fprintln(out, "Storage targets")
	printChecks(out, report.Storage)

	fmt.Fprintln(out, "Notifications")
	printChecks(out, report.Notifications)

	fmt.Fprintln(out, "Scheduler")
	fmt.Fprintf(out, "  enabled: %t, cadence: %s\n", report.Scheduler.Enabled, report.Scheduler.Cadence)
	fmt.Fprintf(out, "  next run: %s\n", report.Scheduler.NextRunString())

	return nil
}

func printChecks(out io.Writer, checks map[string]bool) {
	if len(checks) == 0 {
		fmt.Fprintln(out, "  (none configured)")
		return
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "✅"
		if !checks[name] {
			mark = "❌"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, name)
	}
}
