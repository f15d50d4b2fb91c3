package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <jobId>",
		Short: "Show job status and checkpoint progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			st, err := app.Engine.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <jobId>",
		Short: "Resume a failed job from its last checkpoint and wait for the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			out, err := app.Engine.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newResumableCmd() *cobra.Command {
	var subjectID string
	cmd := &cobra.Command{
		Use:   "resumable",
		Short: "List failed jobs that can be resumed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			items, err := app.Engine.ListResumable(cmd.Context(), subjectID)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			renderResumable(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().StringVar(&subjectID, "subject", "", "only list jobs for this subject")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Fail PROCESSING jobs whose worker stopped heartbeating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if staleAfter <= 0 {
				staleAfter = app.Config.StaleAfter
			}
			n, err := app.Engine.RecoverStale(cmd.Context(), staleAfter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d stale job(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "lease age after which a job is stale (defaults to WORKER_STALE_AFTER)")
	return cmd
}

func newGCCmd() *cobra.Command {
	var completedTTL, abandonedTTL time.Duration
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete old completed and abandoned checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if completedTTL <= 0 {
				completedTTL = app.Config.CompletedTTL
			}
			if abandonedTTL <= 0 {
				abandonedTTL = app.Config.AbandonedTTL
			}
			report, err := app.Engine.CollectGarbage(cmd.Context(), completedTTL, abandonedTTL)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d completed and %d abandoned checkpoint(s)\n", report.Completed, report.Abandoned)
			return nil
		},
	}
	cmd.Flags().DurationVar(&completedTTL, "completed-ttl", 0, "age of completed checkpoints to delete (defaults to GC_COMPLETED_TTL)")
	cmd.Flags().DurationVar(&abandonedTTL, "abandoned-ttl", 0, "age of abandoned checkpoints to delete (defaults to GC_ABANDONED_TTL)")
	return cmd
}
