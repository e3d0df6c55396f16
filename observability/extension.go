package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/ext"
	"github.com/gabteles/qu-mongoid/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.JobEnqueued        = (*MetricsExtension)(nil)
	_ ext.JobReserved        = (*MetricsExtension)(nil)
	_ ext.JobCompleted       = (*MetricsExtension)(nil)
	_ ext.JobFailed          = (*MetricsExtension)(nil)
	_ ext.JobReleased        = (*MetricsExtension)(nil)
	_ ext.WorkerRegistered   = (*MetricsExtension)(nil)
	_ ext.WorkerUnregistered = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope of the lifecycle counters.
const meterName = "github.com/gabteles/qu-mongoid/observability"

// MetricsExtension records system-wide lifecycle counters through an OTel
// meter. Every job counter carries a "queue" attribute.
type MetricsExtension struct {
	JobEnqueued        metric.Int64Counter
	JobReserved        metric.Int64Counter
	JobCompleted       metric.Int64Counter
	JobFailed          metric.Int64Counter
	JobReleased        metric.Int64Counter
	WorkerRegistered   metric.Int64Counter
	WorkerUnregistered metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		JobEnqueued:        counter(meter, "qu.job.enqueued", "Jobs enqueued"),
		JobReserved:        counter(meter, "qu.job.reserved", "Jobs reserved by a worker"),
		JobCompleted:       counter(meter, "qu.job.completed", "Jobs reported complete"),
		JobFailed:          counter(meter, "qu.job.failed", "Jobs recorded as failed"),
		JobReleased:        counter(meter, "qu.job.released", "Jobs put back into their queue"),
		WorkerRegistered:   counter(meter, "qu.worker.registered", "Worker registrations"),
		WorkerUnregistered: counter(meter, "qu.worker.unregistered", "Worker unregistrations"),
	}
}

// counter never fails: on error the OTel API hands back a noop instrument.
func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
	return c
}

func queueAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("queue", j.Queue))
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobReserved implements ext.JobReserved.
func (m *MetricsExtension) OnJobReserved(ctx context.Context, j *job.Job, _ string) error {
	m.JobReserved.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job) error {
	m.JobCompleted.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobReleased implements ext.JobReleased.
func (m *MetricsExtension) OnJobReleased(ctx context.Context, j *job.Job) error {
	m.JobReleased.Add(ctx, 1, queueAttr(j))
	return nil
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerRegistered implements ext.WorkerRegistered.
func (m *MetricsExtension) OnWorkerRegistered(ctx context.Context, _ *cluster.Worker) error {
	m.WorkerRegistered.Add(ctx, 1)
	return nil
}

// OnWorkerUnregistered implements ext.WorkerUnregistered.
func (m *MetricsExtension) OnWorkerUnregistered(ctx context.Context, _ string) error {
	m.WorkerUnregistered.Add(ctx, 1)
	return nil
}
