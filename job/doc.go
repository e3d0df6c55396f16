// Package job defines the job entity, the job store and the handler
// registry.
//
// # Job Entity
//
// A [Job] is a handler tag plus positional arguments. It receives a TypeID
// at enqueue time and keeps it for its whole life:
//
//	pending(queue) → reserved → completed
//	pending(queue) → reserved → failed → pending("failed")
//	pending(queue) → reserved → released → pending(queue)
//
// In storage a job is the document {_id, tag, args} inside the collection of
// its queue. The queue name is not stored in the document; it is implied by
// the collection.
//
// # Store
//
// [Store] implements enqueue, atomic pop, release, length and clear on top
// of any store.Store. Pops never hand the same job to two callers because
// the backend's find-and-remove is atomic.
//
// # Registry
//
// [Registry] maps tags to [HandlerFunc] values used by the worker pool:
//
//	registry.Register("SendEmail", func(ctx context.Context, args []any) error {
//	    return mailer.Send(args[0].(string))
//	})
package job
