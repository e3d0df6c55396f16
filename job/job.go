package job

import (
	"fmt"

	"github.com/gabteles/qu-mongoid/id"
	"github.com/gabteles/qu-mongoid/store"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job sits in a queue waiting for a worker.
	StatePending State = "pending"
	// StateReserved means exactly one worker popped the job and holds it.
	StateReserved State = "reserved"
	// StateCompleted means the handler finished successfully. Terminal.
	StateCompleted State = "completed"
	// StateFailed means the job was recorded in the failed queue.
	StateFailed State = "failed"
	// StateReleased means the job was put back into its queue.
	StateReleased State = "released"
)

// Job is a unit of work: a handler tag plus positional arguments.
type Job struct {
	ID    id.JobID `json:"id"`
	Queue string   `json:"queue"`
	Tag   string   `json:"tag"`
	Args  []any    `json:"args"`
}

// Document field names.
const (
	fieldID   = "_id"
	fieldTag  = "tag"
	fieldArgs = "args"
)

// Document encodes j as stored in its queue collection.
func (j *Job) Document() store.Document {
	args := j.Args
	if args == nil {
		args = []any{}
	}
	return store.Document{
		fieldID:   j.ID.String(),
		fieldTag:  j.Tag,
		fieldArgs: args,
	}
}

// FromDocument decodes a queue document popped from queue.
func FromDocument(queue string, doc store.Document) (*Job, error) {
	rawID, _ := doc[fieldID].(string)
	jobID, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("decode job in %q: %w", queue, err)
	}

	tag, ok := doc[fieldTag].(string)
	if !ok {
		return nil, fmt.Errorf("decode job %s: missing tag", rawID)
	}

	var args []any
	switch v := doc[fieldArgs].(type) {
	case nil:
	case []any:
		args = v
	default:
		return nil, fmt.Errorf("decode job %s: args is %T, want list", rawID, v)
	}

	return &Job{ID: jobID, Queue: queue, Tag: tag, Args: args}, nil
}
