package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gabteles/qu-mongoid/store"
)

// Insert appends doc to the collection list.
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) error {
	b, err := encode(doc)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key(collection), b).Err(); err != nil {
		return wrap("insert", err)
	}
	return nil
}

// FindAndRemoveOne pops the head of the collection list.
func (s *Store) FindAndRemoveOne(ctx context.Context, collection string) (store.Document, error) {
	b, err := s.client.LPop(ctx, s.key(collection)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // empty list
	}
	if err != nil {
		return nil, wrap("find and remove", err)
	}
	return decode(b)
}

// Remove deletes every matching element inside a WATCH transaction.
func (s *Store) Remove(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	key := s.key(collection)
	var removed int64

	err := s.optimistic(ctx, key, func(tx *goredis.Tx) error {
		removed = 0
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}

		var victims []string
		for _, r := range raw {
			doc, err := decode([]byte(r))
			if err != nil {
				s.logger.Warn("skipping undecodable document",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			if store.Match(doc, filter) {
				victims = append(victims, r)
			}
		}
		if len(victims) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, v := range victims {
				pipe.LRem(ctx, key, 1, v)
			}
			return nil
		})
		if err == nil {
			removed = int64(len(victims))
		}
		return err
	})
	if err != nil {
		return 0, wrap("remove", err)
	}
	return removed, nil
}

// Find reads a snapshot of the list on every range and yields the
// matching documents.
func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		raw, err := s.client.LRange(ctx, s.key(collection), 0, -1).Result()
		if err != nil {
			yield(nil, wrap("find", err))
			return
		}
		for _, r := range raw {
			doc, err := decode([]byte(r))
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !store.Match(doc, filter) {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Count uses LLEN for an empty filter and scans otherwise.
func (s *Store) Count(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	if len(filter) == 0 {
		n, err := s.client.LLen(ctx, s.key(collection)).Result()
		if err != nil {
			return 0, wrap("count", err)
		}
		return n, nil
	}

	var n int64
	for _, err := range s.Find(ctx, collection, filter) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// DropCollection deletes the list key.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, s.key(collection)).Err(); err != nil {
		return wrap("drop", err)
	}
	return nil
}

// Upsert overwrites the first matching element in place or appends doc.
func (s *Store) Upsert(ctx context.Context, collection string, key store.Filter, doc store.Document) error {
	listKey := s.key(collection)
	b, err := encode(store.Merge(key, doc))
	if err != nil {
		return err
	}

	err = s.optimistic(ctx, listKey, func(tx *goredis.Tx) error {
		raw, err := tx.LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return err
		}

		idx := int64(-1)
		for i, r := range raw {
			existing, err := decode([]byte(r))
			if err == nil && store.Match(existing, key) {
				idx = int64(i)
				break
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if idx >= 0 {
				pipe.LSet(ctx, listKey, idx, b)
			} else {
				pipe.RPush(ctx, listKey, b)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return wrap("upsert", err)
	}
	return nil
}

// optimistic runs fn under WATCH key, retrying when another client
// modified the key before EXEC.
func (s *Store) optimistic(ctx context.Context, key string, fn func(*goredis.Tx) error) error {
	for range maxTxAttempts {
		err := s.client.Watch(ctx, fn, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", goredis.TxFailedErr, maxTxAttempts)
}
