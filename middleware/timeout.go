package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabteles/qu-mongoid/job"
)

// Timeout returns middleware that enforces an execution deadline on every
// job. A zero or negative d disables it. When the deadline passes the
// context is cancelled and the handler should return
// context.DeadlineExceeded.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
