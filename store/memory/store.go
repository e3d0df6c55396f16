// Package memory provides an in-memory store.Store. Safe for concurrent
// access. Intended for unit testing, development and single-process use.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sync"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures a memory Store.
type Option func(*Store)

// WithLegacyPop makes FindAndRemoveOne on an empty collection report
// qu.ErrUnsupported, as old document servers do.
func WithLegacyPop() Option {
	return func(s *Store) { s.legacyPop = true }
}

// Store keeps every collection as an insertion-ordered slice of documents.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]store.Document
	closed      bool
	legacyPop   bool
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{collections: make(map[string][]store.Document)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check()
}

// Close marks the store closed. Every later operation reports
// qu.ErrStorageUnavailable.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Store) check() error {
	if m.closed {
		return fmt.Errorf("qu/memory: %w: %w", qu.ErrStorageUnavailable, qu.ErrStoreClosed)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Documents
// ──────────────────────────────────────────────────

// Insert appends a copy of doc to collection.
func (m *Store) Insert(_ context.Context, collection string, doc store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	m.collections[collection] = append(m.collections[collection], store.Clone(doc))
	return nil
}

// FindAndRemoveOne removes and returns the oldest document in collection.
func (m *Store) FindAndRemoveOne(_ context.Context, collection string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}

	docs := m.collections[collection]
	if len(docs) == 0 {
		if m.legacyPop {
			return nil, fmt.Errorf("qu/memory: find and remove: %w", qu.ErrUnsupported)
		}
		return nil, nil //nolint:nilnil // nil document means the collection is empty
	}

	doc := docs[0]
	docs[0] = nil
	m.collections[collection] = docs[1:]
	return doc, nil
}

// Remove deletes every matching document.
func (m *Store) Remove(_ context.Context, collection string, filter store.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return 0, err
	}

	docs := m.collections[collection]
	kept := docs[:0]
	var removed int64
	for _, d := range docs {
		if store.Match(d, filter) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	clear(docs[len(kept):])
	m.collections[collection] = kept
	return removed, nil
}

// Find yields copies of the matching documents as of the start of each
// iteration.
func (m *Store) Find(_ context.Context, collection string, filter store.Filter) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		m.mu.RLock()
		if err := m.check(); err != nil {
			m.mu.RUnlock()
			yield(nil, err)
			return
		}
		var matched []store.Document
		for _, d := range m.collections[collection] {
			if store.Match(d, filter) {
				matched = append(matched, store.Clone(d))
			}
		}
		m.mu.RUnlock()

		for _, d := range matched {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Count reports how many documents match filter.
func (m *Store) Count(_ context.Context, collection string, filter store.Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(); err != nil {
		return 0, err
	}

	var n int64
	for _, d := range m.collections[collection] {
		if store.Match(d, filter) {
			n++
		}
	}
	return n, nil
}

// DropCollection deletes collection.
func (m *Store) DropCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	delete(m.collections, collection)
	return nil
}

// Upsert replaces the first document matching key, or appends one.
func (m *Store) Upsert(_ context.Context, collection string, key store.Filter, doc store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}

	merged := store.Merge(key, doc)
	docs := m.collections[collection]
	for i, d := range docs {
		if store.Match(d, key) {
			docs[i] = merged
			return nil
		}
	}
	m.collections[collection] = append(docs, merged)
	return nil
}
