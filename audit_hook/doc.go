// Package audithook is an extension that turns job and worker lifecycle
// events into structured audit events.
//
// Each hook emits an [AuditEvent] through a [Recorder]. Normal operations
// are recorded at info severity, releases at warning and failures at
// critical. [LogRecorder] writes events to a slog.Logger and
// [StoreRecorder] appends them to a document-store collection.
//
// # Usage
//
//	eng, err := engine.Build(st,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobReleased,
//	    ),
//	)
package audithook
