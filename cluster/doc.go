// Package cluster tracks the workers polling the queues.
//
// Each worker process registers a [Worker] with its ID, the queues it polls
// in priority order and free-form attributes (hostname and pid by default).
// Records live in the "<ns>:workers" collection keyed by worker ID, so a
// restarted process with the same identity overwrites its old record.
//
//	w := cluster.NewWorker("critical", "default")
//	_ = reg.Register(ctx, w)
//	defer reg.Unregister(ctx, w.ID)
//
//	for w, err := range reg.List(ctx) {
//	    ...
//	}
//
// There is no heartbeat or reaping. A crashed worker's record stays until
// [Registry.Clear] or an explicit Unregister.
package cluster
