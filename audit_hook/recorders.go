package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabteles/qu-mongoid/store"
)

// LogRecorder writes each event as one log record. Critical events are
// logged at error level and warnings at warn level.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.State != "" {
			attrs = append(attrs, slog.String("state", string(evt.State)))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// StoreRecorder appends each event as a document to collection.
func StoreRecorder(st store.Store, collection string) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		doc := store.Document{
			"action":      evt.Action,
			"resource":    evt.Resource,
			"category":    evt.Category,
			"resource_id": evt.ResourceID,
			"outcome":     evt.Outcome,
			"severity":    evt.Severity,
			"at":          time.Now().UTC().Format(time.RFC3339Nano),
		}
		if evt.State != "" {
			doc["state"] = string(evt.State)
		}
		if evt.Reason != "" {
			doc["reason"] = evt.Reason
		}
		if len(evt.Metadata) > 0 {
			doc["metadata"] = map[string]any(evt.Metadata)
		}
		return st.Insert(ctx, collection, doc)
	})
}
