package cluster

import (
	"context"
	"fmt"
	"iter"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/store"
)

// Registry records live workers in the "<ns>:workers" collection.
type Registry struct {
	docs store.Store
	ns   store.Namespace
}

// NewRegistry returns a worker registry over docs.
func NewRegistry(docs store.Store, ns store.Namespace) *Registry {
	return &Registry{docs: docs, ns: ns}
}

// Register upserts w keyed by its ID. Registering the same ID again
// overwrites the earlier record.
func (r *Registry) Register(ctx context.Context, w *Worker) error {
	if w == nil || w.ID == "" {
		return fmt.Errorf("register worker: %w", qu.ErrInvalidWorker)
	}
	key := store.Filter{fieldID: w.ID}
	if err := r.docs.Upsert(ctx, r.ns.Workers(), key, w.document()); err != nil {
		return fmt.Errorf("register worker %s: %w", w.ID, err)
	}
	return nil
}

// Unregister deletes the record with workerID. An unknown ID is not an
// error.
func (r *Registry) Unregister(ctx context.Context, workerID string) error {
	if _, err := r.docs.Remove(ctx, r.ns.Workers(), store.Filter{fieldID: workerID}); err != nil {
		return fmt.Errorf("unregister worker %s: %w", workerID, err)
	}
	return nil
}

// List yields every registered worker. The sequence is finite and each
// range over it reads storage afresh.
func (r *Registry) List(ctx context.Context) iter.Seq2[*Worker, error] {
	return func(yield func(*Worker, error) bool) {
		for doc, err := range r.docs.Find(ctx, r.ns.Workers(), nil) {
			if err != nil {
				yield(nil, fmt.Errorf("list workers: %w", err))
				return
			}
			w, err := workerFromDocument(doc)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

// All collects List into a slice, stopping at the first error.
func (r *Registry) All(ctx context.Context) ([]*Worker, error) {
	var out []*Worker
	for w, err := range r.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Clear removes every worker record.
func (r *Registry) Clear(ctx context.Context) error {
	if err := r.docs.DropCollection(ctx, r.ns.Workers()); err != nil {
		return fmt.Errorf("clear workers: %w", err)
	}
	return nil
}
