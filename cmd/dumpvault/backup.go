package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/semmidev/dumpvault/internal/domain"
)

var backupDatabases []string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run a backup now",
	Long: `Back up the configured databases, or the ones given with --databases.
Exits non-zero if any database fails.`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringSliceVarP(&backupDatabases, "databases", "d", nil, "databases to back up (default: all configured)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	var databases []string
	if cmd.Flags().Changed("databases") {
		databases = backupDatabases
		if databases == nil {
			databases = []string{}
		}
	}

	results, err := application.Backup(ctx, databases)
	if err != nil {
		return err
	}

	printResults(cmd, results)

	if !domain.BatchSucceeded(results) {
		return fmt.Errorf("one or more backups failed")
	}
	return nil
}

func printResults(cmd *cobra.Command, results map[string]*domain.BackupResult) {
	out := cmd.OutOrStdout()

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := results[name]
		if !r.Success {
			fmt.Fprintf(out, "❌ %s: failed at %s: %s\n", name, r.FailedStage, r.Error)
			continue
		}

		fmt.Fprintf(out, "✅ %s: %s (%.2f MB) in %s\n",
			name, r.Artifact.Filename, r.Artifact.SizeMB(), r.Duration.Round(time.Second))

		targets := make([]string, 0, len(r.Uploads))
		for target, ok := range r.Uploads {
			mark := "✅"
			if !ok {
				mark = "❌"
			}
			targets = append(targets, fmt.Sprintf("%s %s", mark, target))
		}
		sort.Strings(targets)
		if len(targets) > 0 {
			fmt.Fprintf(out, "   uploads: %s\n", strings.Join(targets, ", "))
		}
		if r.Evicted > 0 {
			fmt.Fprintf(out, "   evicted %d old backup(s)\n", r.Evicted)
		}
	}
}
