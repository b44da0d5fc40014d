package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	var exportAfter bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one full crawl and exits",
		Long: `Discovers the index page count, collects listing URLs, fetches every
detail page and upserts the extracted listings. Persistence failures make the
command exit non-zero; fetch and parse failures are logged and counted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := a.Pipeline()
			if err != nil {
				return err
			}
			summary, err := p.Run(ctx)
			if err != nil {
				return fmt.Errorf("crawl run %s: %w", summary.RunID, err)
			}
			a.Logger().Info("crawl command finished",
				zap.String("run_id", summary.RunID),
				zap.Int64("stored", summary.Stored),
			)
			if !exportAfter {
				return nil
			}
			return runExport(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&exportAfter, "export", false, "write a listing snapshot after a successful crawl")
	return cmd
}
