package store

import (
	"context"
	"iter"
)

// Document is one stored record. Keys are field names; "_id" is the
// conventional identity field.
type Document map[string]any

// Filter selects documents by top-level field equality. An empty or nil
// filter matches every document in a collection.
type Filter map[string]any

// Store is the storage collaborator.
//
// Transport failures are reported wrapped with qu.ErrStorageUnavailable.
// Operations on a collection that does not exist behave as on an empty one.
type Store interface {
	// Insert adds doc to collection, creating the collection if needed.
	Insert(ctx context.Context, collection string, doc Document) error

	// FindAndRemoveOne atomically removes and returns one document. It
	// returns (nil, nil) when the collection is empty. Concurrent callers
	// never receive the same document. Legacy servers may report an empty
	// match as qu.ErrUnsupported.
	FindAndRemoveOne(ctx context.Context, collection string) (Document, error)

	// Remove deletes every document matching filter and reports how many
	// were removed.
	Remove(ctx context.Context, collection string, filter Filter) (int64, error)

	// Find yields documents matching filter. The sequence is lazy and each
	// range over it re-queries storage.
	Find(ctx context.Context, collection string, filter Filter) iter.Seq2[Document, error]

	// Count reports how many documents match filter.
	Count(ctx context.Context, collection string, filter Filter) (int64, error)

	// DropCollection removes a collection and all of its documents.
	DropCollection(ctx context.Context, collection string) error

	// Upsert replaces the document matching key with doc, inserting it when
	// none matches. The fields of key are merged into doc.
	Upsert(ctx context.Context, collection string, key Filter, doc Document) error

	// Migrate prepares indexes or schema. Idempotent.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
