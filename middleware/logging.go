package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabteles/qu-mongoid/job"
)

// Logging logs the start of each job at debug level and its outcome:
// info on success, warn when interrupted by shutdown, error on failure.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		l := logger.With(
			slog.String("job_id", j.ID.String()),
			slog.String("tag", j.Tag),
			slog.String("queue", j.Queue),
		)
		l.Debug("job started", slog.Int("args", len(j.Args)))

		start := time.Now()
		err := next(ctx)
		elapsed := slog.Duration("elapsed", time.Since(start))

		switch Status(ctx, err) {
		case StatusOK:
			l.Info("job completed", elapsed)
		case StatusInterrupted:
			l.Warn("job interrupted", elapsed)
		default:
			l.Error("job failed", elapsed, slog.String("error", err.Error()))
		}
		return err
	}
}
