package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification channel tools",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test message on every enabled channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		results := application.TestNotifications(ctx)
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No notification channels enabled")
			return nil
		}

		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := 0
		for _, name := range names {
			if err := results[name]; err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "❌ %s: %v\n", name, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n", name)
		}
		if failed > 0 {
			return fmt.Errorf("%d channel(s) failed", failed)
		}
		return nil
	},
}

func init() {
	notifyCmd.AddCommand(notifyTestCmd)
}
