package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued        = "job.enqueued"
	ActionJobReserved        = "job.reserved"
	ActionJobCompleted       = "job.completed"
	ActionJobFailed          = "job.failed"
	ActionJobReleased        = "job.released"
	ActionWorkerRegistered   = "worker.registered"
	ActionWorkerUnregistered = "worker.unregistered"
)

// Audit event categories group related actions.
const (
	CategoryJob    = "qu.job"
	CategoryWorker = "qu.worker"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob    = "job"
	ResourceWorker = "worker"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobReserved,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobReleased,
		ActionWorkerRegistered,
		ActionWorkerUnregistered,
	}
}
