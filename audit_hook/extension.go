package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/ext"
	"github.com/gabteles/qu-mongoid/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.JobEnqueued        = (*Extension)(nil)
	_ ext.JobReserved        = (*Extension)(nil)
	_ ext.JobCompleted       = (*Extension)(nil)
	_ ext.JobFailed          = (*Extension)(nil)
	_ ext.JobReleased        = (*Extension)(nil)
	_ ext.WorkerRegistered   = (*Extension)(nil)
	_ ext.WorkerUnregistered = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audited lifecycle transition.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	State      job.State      `json:"state,omitempty"` // job state after the transition
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges lifecycle events to a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, job.StatePending, nil,
		"tag", j.Tag,
		"queue", j.Queue,
	)
}

// OnJobReserved implements ext.JobReserved.
func (e *Extension) OnJobReserved(ctx context.Context, j *job.Job, workerID string) error {
	return e.record(ctx, ActionJobReserved, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, job.StateReserved, nil,
		"tag", j.Tag,
		"queue", j.Queue,
		"worker_id", workerID,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, job.StateCompleted, nil,
		"tag", j.Tag,
		"queue", j.Queue,
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, job.StateFailed, jobErr,
		"tag", j.Tag,
		"queue", j.Queue,
	)
}

// OnJobReleased implements ext.JobReleased.
func (e *Extension) OnJobReleased(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobReleased, SeverityWarning, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, job.StateReleased, nil,
		"tag", j.Tag,
		"queue", j.Queue,
	)
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerRegistered implements ext.WorkerRegistered.
func (e *Extension) OnWorkerRegistered(ctx context.Context, w *cluster.Worker) error {
	return e.record(ctx, ActionWorkerRegistered, SeverityInfo, OutcomeSuccess,
		ResourceWorker, w.ID, CategoryWorker, "", nil,
		"queues", strings.Join(w.Queues, ","),
	)
}

// OnWorkerUnregistered implements ext.WorkerUnregistered.
func (e *Extension) OnWorkerUnregistered(ctx context.Context, workerID string) error {
	return e.record(ctx, ActionWorkerUnregistered, SeverityInfo, OutcomeSuccess,
		ResourceWorker, workerID, CategoryWorker, "", nil,
	)
}

// record builds and emits an audit event. Recorder failures are logged
// and never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	state job.State,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = reason
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		State:      state,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
