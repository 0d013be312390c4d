package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreFrom string

var restoreCmd = &cobra.Command{
	Use:   "restore <database> <artifact>",
	Short: "Restore a database from a backup",
	Long: `Restore <database> from <artifact>, either a file name inside the
backup directory or a path. Compressed backups are expanded to a temporary
file first. With --from, <artifact> is fetched from that storage target
into the backup directory before restoring.`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	database, artifact := args[0], args[1]
	if restoreFrom != "" {
		if artifact, err = application.Fetch(ctx, restoreFrom, artifact); err != nil {
			return err
		}
	}
	if err := application.Restore(ctx, database, artifact); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Restored %s from %s\n", database, artifact)
	return nil
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFrom, "from", "", "storage target to fetch the backup from")
}
