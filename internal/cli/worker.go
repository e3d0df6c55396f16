package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gabteles/qu-mongoid/engine"
)

func newWorkersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				for w, err := range eng.Workers(ctx) {
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", w.ID, strings.Join(w.Queues, ","))
				}
				return nil
			})
		},
	}
}

func newClearWorkersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-workers",
		Short: "Remove every worker registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				return eng.ClearWorkers(ctx)
			})
		},
	}
}
