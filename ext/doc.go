// Package ext defines the extension system.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs or similar. Each lifecycle hook is a
// separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    log.Printf("job %s failed: %v", j.ID, err)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued]: job was persisted in its queue
//   - [JobReserved]: a worker popped the job
//   - [JobCompleted]: the worker reported success
//   - [JobFailed]: the failure was recorded in the failed queue
//   - [JobReleased]: the job went back into its queue
//
// # Worker Hooks
//
//   - [WorkerRegistered] / [WorkerUnregistered]
//   - [Shutdown]: the engine is closing
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never reach the caller.
package ext
