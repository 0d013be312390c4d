package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listDatabase string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local backups, newest first",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listDatabase, "database", "", "only list backups of this database")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	artifacts, err := application.List(listDatabase)
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No backups found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tDATABASE\tCREATED\tSIZE (MB)")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", a.Filename, a.Database, a.CreatedAt.Format("2006-01-02 15:04:05"), a.SizeMB())
	}
	return w.Flush()
}
