package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"docgen-backend/internal/bootstrap"
	"docgen-backend/internal/shared/config"
	"docgen-backend/internal/shared/telemetry"
)

type appKey struct{}

var outputJSON bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Inspect and operate document generation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			telemetry.Configure(cmd.ErrOrStderr(), cfg.LogLevel)
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required; jobctl operates on the shared job store")
			}
			app, err := bootstrap.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app, err := appFromContext(cmd.Context()); err == nil {
				app.Engine.Wait()
				return app.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	root.AddCommand(
		newStatusCmd(),
		newResumeCmd(),
		newResumableCmd(),
		newRecoverCmd(),
		newGCCmd(),
	)
	return root
}

func appFromContext(ctx context.Context) (*bootstrap.App, error) {
	app, ok := ctx.Value(appKey{}).(*bootstrap.App)
	if !ok || app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}
