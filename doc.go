// Package qu provides the storage side of a distributed background-job
// queue: durable job storage, atomic single-consumer reservation across
// concurrently polling workers, a worker registry and failure bookkeeping.
//
// The engine is storage agnostic. Any backend that implements store.Store
// (Mongo, Redis, Postgres or the in-memory store) can hold the queues.
//
// # Quick Start
//
//	st, err := mongo.Connect(ctx, qu.DefaultConfig())
//	eng, err := engine.Build(st)
//
//	eng.Enqueue(ctx, "mail", "SendEmail", []any{"a@b.c"})
//
//	w := cluster.NewWorker("mail")
//	j, err := eng.Reserve(ctx, w, engine.Blocking)
//
// # Data model
//
// Each queue is a collection named "<ns>:queue:<name>". Queue names live in
// "<ns>:queues" and worker records in "<ns>:workers". Failed jobs are kept
// in the "failed" pseudo-queue so they can be counted, cleared and replayed
// like any other queue.
//
// Job IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based identifiers.
package qu
