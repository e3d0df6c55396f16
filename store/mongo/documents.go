package mongo

import (
	"context"
	"errors"
	"iter"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gabteles/qu-mongoid/backoff"
	"github.com/gabteles/qu-mongoid/store"
)

// do runs fn, retrying connection failures when WithRetry is set.
func (s *Store) do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := backoff.RetryIf(ctx, s.maxRetries, backoff.NewConstant(s.retryDelay), isConnectionFailure, fn)
	if err != nil {
		return wrap(op, err)
	}
	return nil
}

// Insert adds doc to collection.
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) error {
	return s.do(ctx, "insert", func(ctx context.Context) error {
		_, err := s.db.Collection(collection).InsertOne(ctx, bson.M(doc))
		return err
	})
}

// FindAndRemoveOne atomically removes one document with findAndModify.
func (s *Store) FindAndRemoveOne(ctx context.Context, collection string) (store.Document, error) {
	var raw bson.M
	err := s.do(ctx, "find and remove", func(ctx context.Context) error {
		return s.db.Collection(collection).FindOneAndDelete(ctx, bson.M{}).Decode(&raw)
	})
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, nil //nolint:nilnil // empty collection
		}
		return nil, err
	}
	return fromBSON(raw), nil
}

// Remove deletes every document matching filter.
func (s *Store) Remove(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	var removed int64
	err := s.do(ctx, "remove", func(ctx context.Context) error {
		res, err := s.db.Collection(collection).DeleteMany(ctx, toFilter(filter))
		if err != nil {
			return err
		}
		removed = res.DeletedCount
		return nil
	})
	return removed, err
}

// Find streams documents matching filter from a cursor. Each range opens a
// new cursor.
func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		var cur *mongod.Cursor
		err := s.do(ctx, "find", func(ctx context.Context) error {
			var err error
			cur, err = s.db.Collection(collection).Find(ctx, toFilter(filter), options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}}))
			return err
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))

		for cur.Next(ctx) {
			var raw bson.M
			if err := cur.Decode(&raw); err != nil {
				if !yield(nil, wrap("decode", err)) {
					return
				}
				continue
			}
			if !yield(fromBSON(raw), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, wrap("find", err))
		}
	}
}

// Count reports how many documents match filter.
func (s *Store) Count(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	var n int64
	err := s.do(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = s.db.Collection(collection).CountDocuments(ctx, toFilter(filter))
		return err
	})
	return n, err
}

// DropCollection drops collection. Dropping a missing collection succeeds.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	return s.do(ctx, "drop", func(ctx context.Context) error {
		return s.db.Collection(collection).Drop(ctx)
	})
}

// Upsert replaces the document matching key, inserting it when absent.
func (s *Store) Upsert(ctx context.Context, collection string, key store.Filter, doc store.Document) error {
	replacement := bson.M(store.Merge(key, doc))
	return s.do(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.db.Collection(collection).ReplaceOne(ctx, toFilter(key), replacement,
			options.Replace().SetUpsert(true))
		return err
	})
}

// ── conversion ───────────────────────────────────────────────────

func toFilter(f store.Filter) bson.M {
	if len(f) == 0 {
		return bson.M{}
	}
	return bson.M(f)
}

// fromBSON converts a decoded document into plain Go maps and slices.
func fromBSON(raw bson.M) store.Document {
	doc := make(store.Document, len(raw))
	for k, v := range raw {
		doc[k] = normalize(v)
	}
	return doc
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
