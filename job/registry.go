package job

import (
	"context"
	"sync"
)

// HandlerFunc processes the positional arguments of one job.
type HandlerFunc func(ctx context.Context, args []any) error

// Registry maps job tags to handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds tag to h, replacing any earlier handler.
func (r *Registry) Register(tag string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = h
}

// Get returns the handler for the given tag.
// Returns false if no handler is registered.
func (r *Registry) Get(tag string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Tags returns all registered job tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	return tags
}
