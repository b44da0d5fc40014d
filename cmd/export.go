package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/app"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Writes all stored listings as JSON Lines to the export blob store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), a)
		},
	}
}

func runExport(ctx context.Context, a *app.App) error {
	exp, err := a.Exporter(ctx)
	if err != nil {
		return err
	}
	res, err := exp.Run(ctx)
	if err != nil {
		return fmt.Errorf("export listings: %w", err)
	}
	a.Logger().Info("export written",
		zap.String("uri", res.URI),
		zap.Int64("listings", res.Count),
		zap.String("sha256", res.Checksum),
	)
	return nil
}
