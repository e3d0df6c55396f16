package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/engine"
)

// newEnqueueCommand constructs `qu enqueue QUEUE TAG [ARG...]`. Each ARG is
// decoded as JSON when it parses, and taken as a string otherwise.
func newEnqueueCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue QUEUE TAG [ARG...]",
		Short: "Add a job to a queue",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobArgs := parseArgs(args[2:])
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				j, err := eng.Enqueue(ctx, args[0], args[1], jobArgs...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), j.ID)
				return nil
			})
		},
	}
}

func newLengthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "length [QUEUE]",
		Short: "Print the number of pending jobs in a queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := qu.DefaultQueue
			if len(args) == 1 {
				name = args[0]
			}
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				n, err := eng.Length(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func newQueuesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List registered queues with their lengths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				names, err := eng.Queues(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					n, err := eng.Length(ctx, name)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, n)
				}
				return nil
			})
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [QUEUE...]",
		Short: "Empty queues (all queues and failed jobs when none is named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				return eng.Clear(ctx, args...)
			})
		},
	}
}

// newReserveCommand constructs `qu reserve QUEUE...`. The reserved job is
// printed as JSON and removed from its queue.
func newReserveCommand(a *app) *cobra.Command {
	var (
		block   bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reserve QUEUE...",
		Short: "Pop one job, trying queues in priority order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := qu.NonBlocking
			if block {
				mode = qu.Blocking
			}
			ctx := cmd.Context()
			if block && timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return a.withEngine(ctx, func(ctx context.Context, eng *engine.Engine) error {
				j, err := eng.Reserve(ctx, cluster.NewWorker(args...), mode)
				if err != nil {
					return err
				}
				if j == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "no job available")
					return nil
				}
				return printJSON(cmd, j)
			})
		},
	}
	cmd.Flags().BoolVarP(&block, "block", "b", false, "wait until a job arrives")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up blocking after this long")
	return cmd
}

func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}
		out = append(out, v)
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}
