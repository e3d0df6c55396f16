package dlq

import (
	"fmt"
	"time"

	"github.com/gabteles/qu-mongoid/id"
	"github.com/gabteles/qu-mongoid/job"
	"github.com/gabteles/qu-mongoid/store"
)

// Entry is the record of one failed job. It keeps everything needed to run
// the job again plus the failure context.
type Entry struct {
	JobID    id.JobID  `json:"job_id"`
	Tag      string    `json:"tag"`
	Args     []any     `json:"args"`
	Queue    string    `json:"queue"`
	Error    string    `json:"error,omitempty"`
	FailedAt time.Time `json:"failed_at"`
}

// Job rebuilds the failed job under its original ID and queue.
func (e *Entry) Job() *job.Job {
	return &job.Job{ID: e.JobID, Queue: e.Queue, Tag: e.Tag, Args: e.Args}
}

// Document field names beyond the job's own.
const (
	fieldID       = "_id"
	fieldQueue    = "queue"
	fieldError    = "error"
	fieldFailedAt = "failed_at"
)

func (e *Entry) document(j *job.Job) store.Document {
	doc := j.Document()
	doc[fieldQueue] = e.Queue
	doc[fieldError] = e.Error
	doc[fieldFailedAt] = e.FailedAt.UTC().Format(time.RFC3339Nano)
	return doc
}

func entryFromDocument(doc store.Document) (*Entry, error) {
	origin, _ := doc[fieldQueue].(string)
	j, err := job.FromDocument(origin, doc)
	if err != nil {
		return nil, fmt.Errorf("decode failed entry: %w", err)
	}

	e := &Entry{JobID: j.ID, Tag: j.Tag, Args: j.Args, Queue: origin}
	e.Error, _ = doc[fieldError].(string)
	if raw, ok := doc[fieldFailedAt].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			e.FailedAt = ts
		}
	}
	return e, nil
}
