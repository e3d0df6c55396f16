package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"

	"github.com/gabteles/qu-mongoid/store"
)

// Insert adds doc to collection.
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) error {
	b, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO qu_documents (collection, doc) VALUES ($1, $2)`,
		collection, b,
	)
	if err != nil {
		return wrap("insert", err)
	}
	return nil
}

// FindAndRemoveOne deletes the oldest row of collection. SKIP LOCKED lets
// concurrent poppers claim different rows without blocking on each other.
func (s *Store) FindAndRemoveOne(ctx context.Context, collection string) (store.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		DELETE FROM qu_documents
		WHERE id = (
			SELECT id FROM qu_documents
			WHERE collection = $1
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING doc`,
		collection,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // empty collection
		}
		return nil, wrap("find and remove", err)
	}
	return decode(raw)
}

// Remove deletes every row whose document contains filter.
func (s *Store) Remove(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	f, err := encodeFilter(filter)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM qu_documents WHERE collection = $1 AND doc @> $2::jsonb`,
		collection, f,
	)
	if err != nil {
		return 0, wrap("remove", err)
	}
	return tag.RowsAffected(), nil
}

// Find yields matching documents in insertion order. Each range runs a new
// query.
func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		f, err := encodeFilter(filter)
		if err != nil {
			yield(nil, err)
			return
		}

		rows, err := s.pool.Query(ctx,
			`SELECT doc FROM qu_documents WHERE collection = $1 AND doc @> $2::jsonb ORDER BY id`,
			collection, f,
		)
		if err != nil {
			yield(nil, wrap("find", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				yield(nil, wrap("find", err))
				return
			}
			doc, err := decode(raw)
			if !yield(doc, err) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, wrap("find", err))
		}
	}
}

// Count reports how many rows of collection contain filter.
func (s *Store) Count(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	f, err := encodeFilter(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM qu_documents WHERE collection = $1 AND doc @> $2::jsonb`,
		collection, f,
	).Scan(&n)
	if err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// DropCollection deletes every row of collection.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM qu_documents WHERE collection = $1`, collection)
	if err != nil {
		return wrap("drop", err)
	}
	return nil
}

// Upsert replaces the first row containing key or inserts doc. A
// transaction-scoped advisory lock on collection and key serialises
// concurrent upserts of the same key.
func (s *Store) Upsert(ctx context.Context, collection string, key store.Filter, doc store.Document) error {
	f, err := encodeFilter(key)
	if err != nil {
		return err
	}
	b, err := encode(store.Merge(key, doc))
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("upsert", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, collection+":"+string(f)); err != nil {
		return wrap("upsert", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE qu_documents SET doc = $3
		WHERE id = (
			SELECT id FROM qu_documents
			WHERE collection = $1 AND doc @> $2::jsonb
			ORDER BY id
			LIMIT 1
		)`,
		collection, f, b,
	)
	if err != nil {
		return wrap("upsert", err)
	}

	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO qu_documents (collection, doc) VALUES ($1, $2)`,
			collection, b,
		)
		if err != nil {
			return wrap("upsert", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("upsert", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// JSON helpers
// ──────────────────────────────────────────────────

func encode(doc store.Document) ([]byte, error) {
	b, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("qu/postgres: encode: %w", err)
	}
	return b, nil
}

// encodeFilter renders filter as a JSONB containment operand. A nil filter
// becomes {} which every document contains. Map keys are sorted by
// encoding/json, so equal filters produce equal bytes.
func encodeFilter(filter store.Filter) ([]byte, error) {
	if len(filter) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(filter))
	if err != nil {
		return nil, fmt.Errorf("qu/postgres: encode filter: %w", err)
	}
	return b, nil
}

func decode(raw []byte) (store.Document, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("qu/postgres: decode: %w", err)
	}
	return store.Document(m), nil
}
