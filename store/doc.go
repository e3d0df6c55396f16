// Package store defines the document-storage contract shared by every
// backend.
//
// Subsystems never talk to a database directly. The job store, queue
// registry, worker registry and failed-job sink are all written against
// [Store], a small document API:
//
//	type Store interface {
//	    Insert(ctx, collection, doc) error
//	    FindAndRemoveOne(ctx, collection) (Document, error)
//	    Remove(ctx, collection, filter) (int64, error)
//	    Find(ctx, collection, filter) iter.Seq2[Document, error]
//	    Count(ctx, collection, filter) (int64, error)
//	    DropCollection(ctx, collection) error
//	    Upsert(ctx, collection, key, doc) error
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/mongo: MongoDB using the official v2 driver
//   - store/redis: Redis lists of msgpack-encoded documents
//   - store/postgres: PostgreSQL JSONB documents using pgx/v5
//   - store/memory: in-memory store for development and testing
//
// # Collection keys
//
// [Namespace] derives collection names: "qu:queue:<name>" for pending jobs,
// "qu:queues" for the queue registry and "qu:workers" for worker records.
//
// # Conformance
//
// Package store/storetest holds a behavioural suite every backend must pass.
package store
