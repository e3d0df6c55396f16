package dlq

import (
	"context"
	"fmt"
	"iter"
	"time"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/id"
	"github.com/gabteles/qu-mongoid/job"
	"github.com/gabteles/qu-mongoid/store"
)

// Sink records failed jobs in the failed pseudo-queue.
type Sink struct {
	docs store.Store
	jobs *job.Store
	ns   store.Namespace
	now  func() time.Time
}

// NewSink returns a sink writing to "<ns>:queue:failed". Replayed jobs are
// pushed back through jobs.
func NewSink(docs store.Store, jobs *job.Store, ns store.Namespace) *Sink {
	return &Sink{docs: docs, jobs: jobs, ns: ns, now: time.Now}
}

func (s *Sink) collection() string { return s.ns.Queue(qu.FailedQueue) }

// Record inserts one failure record for j. The job is not put back into
// its queue.
func (s *Sink) Record(ctx context.Context, j *job.Job, jobErr error) (*Entry, error) {
	if j == nil || j.ID.IsNil() {
		return nil, qu.ErrInvalidJob
	}

	e := &Entry{
		JobID:    j.ID,
		Tag:      j.Tag,
		Args:     j.Args,
		Queue:    j.Queue,
		FailedAt: s.now().UTC(),
	}
	if jobErr != nil {
		e.Error = jobErr.Error()
	}

	if err := s.docs.Insert(ctx, s.collection(), e.document(j)); err != nil {
		return nil, fmt.Errorf("record failure of %s: %w", j.ID, err)
	}
	return e, nil
}

// Entries yields every failed record.
func (s *Sink) Entries(ctx context.Context) iter.Seq2[*Entry, error] {
	return s.find(ctx, nil)
}

// Get returns the failed record of jobID.
func (s *Sink) Get(ctx context.Context, jobID id.JobID) (*Entry, error) {
	for e, err := range s.find(ctx, store.Filter{fieldID: jobID.String()}) {
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, qu.ErrJobNotFound
}

func (s *Sink) find(ctx context.Context, filter store.Filter) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for doc, err := range s.docs.Find(ctx, s.collection(), filter) {
			if err != nil {
				yield(nil, fmt.Errorf("list failed jobs: %w", err))
				return
			}
			e, err := entryFromDocument(doc)
			if !yield(e, err) {
				return
			}
		}
	}
}

// Replay removes the failed record of jobID and pushes the job back into
// its original queue under the same ID. If the push fails the record is
// restored.
func (s *Sink) Replay(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	e, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	removed, err := s.docs.Remove(ctx, s.collection(), store.Filter{fieldID: jobID.String()})
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", jobID, err)
	}
	if removed == 0 {
		// Someone else replayed it between Get and Remove.
		return nil, qu.ErrJobNotFound
	}

	j := e.Job()
	if err := s.jobs.Push(ctx, j); err != nil {
		if restoreErr := s.docs.Insert(ctx, s.collection(), e.document(j)); restoreErr != nil {
			return nil, fmt.Errorf("replay %s: %w (restore failed: %v)", jobID, err, restoreErr)
		}
		return nil, fmt.Errorf("replay %s: %w", jobID, err)
	}
	return j, nil
}
