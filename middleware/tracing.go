package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gabteles/qu-mongoid/job"
)

// tracerName is the instrumentation scope name for job tracing.
const tracerName = "github.com/gabteles/qu-mongoid"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes are qu.job.id, qu.job.tag, qu.queue, qu.job.args (the
// argument count) and qu.job.status. Failed jobs get codes.Error; jobs
// interrupted by shutdown keep an unset status and a "job released" event.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "qu.job.execute",
			trace.WithAttributes(
				attribute.String("qu.job.id", j.ID.String()),
				attribute.String("qu.job.tag", j.Tag),
				attribute.String("qu.queue", j.Queue),
				attribute.Int("qu.job.args", len(j.Args)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		status := Status(ctx, err)
		span.SetAttributes(attribute.String("qu.job.status", status))
		switch status {
		case StatusOK:
			span.SetStatus(codes.Ok, "")
		case StatusInterrupted:
			span.AddEvent("job released")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
