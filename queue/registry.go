package queue

import (
	"context"
	"fmt"
	"sort"

	"github.com/gabteles/qu-mongoid/store"
)

const fieldName = "name"

// Registry records which queue names exist. A queue exists from its first
// enqueue until it is cleared. The registry is not transactional with job
// storage, so a name can briefly outlive its jobs or vice versa.
type Registry struct {
	docs store.Store
	ns   store.Namespace
}

// NewRegistry returns a registry kept in the "<ns>:queues" collection.
func NewRegistry(docs store.Store, ns store.Namespace) *Registry {
	return &Registry{docs: docs, ns: ns}
}

// Add registers name. Registering an existing name is a no-op.
func (r *Registry) Add(ctx context.Context, name string) error {
	key := store.Filter{fieldName: name}
	if err := r.docs.Upsert(ctx, r.ns.Queues(), key, store.Document{}); err != nil {
		return fmt.Errorf("register queue %q: %w", name, err)
	}
	return nil
}

// Remove unregisters name. Removing an unknown name is a no-op.
func (r *Registry) Remove(ctx context.Context, name string) error {
	if _, err := r.docs.Remove(ctx, r.ns.Queues(), store.Filter{fieldName: name}); err != nil {
		return fmt.Errorf("unregister queue %q: %w", name, err)
	}
	return nil
}

// Names returns every registered queue name, sorted.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for doc, err := range r.docs.Find(ctx, r.ns.Queues(), nil) {
		if err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}
		name, ok := doc[fieldName].(string)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
