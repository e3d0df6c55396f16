package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gabteles/qu-mongoid/engine"
	"github.com/gabteles/qu-mongoid/id"
)

func newFailedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "Print failed job records as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				for e, err := range eng.Failures(ctx) {
					if err != nil {
						return err
					}
					if err := printJSON(cmd, e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newReplayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay JOB_ID...",
		Short: "Move failed jobs back into their queues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]id.JobID, 0, len(args))
			for _, s := range args {
				jobID, err := id.ParseJobID(s)
				if err != nil {
					return err
				}
				ids = append(ids, jobID)
			}
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				for _, jobID := range ids {
					j, err := eng.Replay(ctx, jobID)
					if err != nil {
						return fmt.Errorf("replay %s: %w", jobID, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", j.ID, j.Queue)
				}
				return nil
			})
		},
	}
}
