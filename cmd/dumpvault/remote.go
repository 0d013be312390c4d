package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Browse and fetch backups held by a storage target",
	Long: `Browse and fetch backups held by a storage target. Only targets that
keep plain files (local and ftp) support this.`,
}

var remoteListCmd = &cobra.Command{
	Use:   "list <target>",
	Short: "List the files on a storage target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		names, err := application.RemoteList(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintf(out, "No files on %s\n", args[0])
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

var remoteFetchCmd = &cobra.Command{
	Use:   "fetch <target> <file>",
	Short: "Copy a backup from a storage target into the backup directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		localPath, err := application.Fetch(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Fetched %s to %s\n", args[1], localPath)
		return nil
	},
}

func init() {
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteFetchCmd)
}
