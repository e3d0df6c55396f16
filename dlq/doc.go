// Package dlq records jobs that failed and lets operators inspect and
// replay them.
//
// Failed jobs live in the "failed" pseudo-queue ("<ns>:queue:failed"), so
// the usual Length and Clear operations count and purge them. Recording a
// failure never re-queues the job.
//
// # Entry
//
// An [Entry] captures:
//   - JobID / Tag / Args: the original job, unchanged
//   - Queue: the queue the job was reserved from
//   - Error: the handler's error message
//   - FailedAt: when the failure was recorded
//
// # Sink
//
//	sink := dlq.NewSink(docs, jobs, ns)
//
//	// Called by the engine when a worker reports a failure.
//	sink.Record(ctx, j, err)
//
//	for e, err := range sink.Entries(ctx) { ... }
//
// # Replay
//
// [Sink.Replay] removes the record and pushes the job back into its
// original queue under the same ID. Concurrent replays of one entry yield
// exactly one job.
package dlq
