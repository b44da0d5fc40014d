// Package cmd defines and implements the CLI commands for the carcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/app"
	"github.com/JakeFAU/car-listing-crawler/internal/config"
	"github.com/JakeFAU/car-listing-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType struct{}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// closer remembers the App built by the pre-run hook so it is closed even
// when the subcommand fails (cobra skips post-run hooks on error).
type closer struct {
	app *app.App
}

func (c *closer) Close(ctx context.Context) {
	if c.app != nil {
		c.app.Close(ctx)
		c.app = nil
	}
}

func newRootCmd(c *closer) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "carcrawler",
		Short: "Crawls a paginated car-listing site into a relational store.",
		Long: `carcrawler discovers how many index pages a listing site has, collects
every listing URL from them, fetches each detail page with a bounded worker
pool and upserts one record per listing URL.`,
		SilenceUsage: true,

		// Config, logger and services are built once here and handed to the
		// subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			c.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars with the CARCRAWLER_ prefix override it")

	cmd.AddCommand(
		newCrawlCmd(),
		newServeCmd(),
		newExportCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func run(ctx context.Context, args []string) error {
	c := &closer{}
	defer c.Close(context.WithoutCancel(ctx))

	root := newRootCmd(c)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", root.Name(), err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
