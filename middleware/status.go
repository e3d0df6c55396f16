package middleware

import (
	"context"
	"errors"
)

// Execution outcomes reported by Logging, Metrics and Tracing.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusInterrupted = "interrupted"
)

// Status classifies the result of a handler call. A handler that stopped
// because the worker is shutting down is interrupted; the job goes back to
// its queue instead of being recorded as failed.
func Status(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return StatusInterrupted
	default:
		return StatusError
	}
}
