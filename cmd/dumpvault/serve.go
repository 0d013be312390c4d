package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler until interrupted",
	Long: `Run scheduled backups in the foreground until SIGINT or SIGTERM.
When metrics.listen is set, Prometheus metrics are served on /metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run(ctx)
}
