package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs crawls on a cron schedule and serves the operator API",
		Long: `Starts the cron scheduler (schedule.cron, or daily at schedule.hour) and
the HTTP API with health, metrics, listing lookup and run trigger endpoints.
Overlapping runs are skipped. SIGINT/SIGTERM drain the active run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
}
