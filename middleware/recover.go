package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gabteles/qu-mongoid/job"
)

// PanicError is returned by Recover when a handler panics. Its message is
// what ends up in the failed-job record.
type PanicError struct {
	Tag   string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.Tag, e.Value)
}

// Recover turns a handler panic into a *PanicError so the job is marked
// failed instead of crashing the worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			pe := &PanicError{Tag: j.Tag, Value: r, Stack: debug.Stack()}
			logger.Error("job handler panicked",
				slog.String("job_id", j.ID.String()),
				slog.String("tag", j.Tag),
				slog.String("queue", j.Queue),
				slog.Any("panic", r),
				slog.String("stack", string(pe.Stack)),
			)
			retErr = pe
		}()
		return next(ctx)
	}
}
