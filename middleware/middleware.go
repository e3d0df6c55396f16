package middleware

import (
	"context"

	"github.com/gabteles/qu-mongoid/job"
)

// Handler runs the job body, or the rest of the chain.
type Handler func(ctx context.Context) error

// Middleware wraps one job execution. It must call next unless it decides
// the job should not run, and it returns the error the executor reports.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws so that mws[0] sees the job first and the last
// element runs directly around the handler. Nil entries are skipped.
//
// Pools built by the engine use
//
//	Recover → Tracing → Metrics → Logging → Timeout → user middleware → handler
//
// so a panic anywhere below Recover still becomes a failed job, and the
// logged duration excludes span and metric bookkeeping.
func Chain(mws ...Middleware) Middleware {
	chain := make([]Middleware, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			chain = append(chain, m)
		}
	}
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return run(ctx, j, chain, next)
	}
}

func run(ctx context.Context, j *job.Job, chain []Middleware, last Handler) error {
	if len(chain) == 0 {
		return last(ctx)
	}
	return chain[0](ctx, j, func(ctx context.Context) error {
		return run(ctx, j, chain[1:], last)
	})
}
