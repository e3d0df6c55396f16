// Package storetest holds the behavioural suite every store.Store backend
// must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/gabteles/qu-mongoid/store"
)

var seq atomic.Int64

// collection returns a collection name unique to this process so subtests
// sharing one backend never see each other's documents.
func collection(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("storetest:%d", seq.Add(1))
}

// Run exercises s against the store.Store contract.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertFind", testInsertFind},
		{"FindFilter", testFindFilter},
		{"FindRestartable", testFindRestartable},
		{"FindEarlyBreak", testFindEarlyBreak},
		{"PopEmpty", testPopEmpty},
		{"PopRemoves", testPopRemoves},
		{"PopExclusive", testPopExclusive},
		{"Remove", testRemove},
		{"Count", testCount},
		{"DropCollection", testDropCollection},
		{"Upsert", testUpsert},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, s) })
	}
}

func collect(t *testing.T, s store.Store, coll string, filter store.Filter) []store.Document {
	t.Helper()
	var out []store.Document
	for doc, err := range s.Find(context.Background(), coll, filter) {
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		out = append(out, doc)
	}
	return out
}

func testInsertFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	err := s.Insert(ctx, coll, store.Document{
		"_id":  "a",
		"tag":  "SendEmail",
		"args": []any{"x@y.z", "hello"},
		"n":    42,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	docs := collect(t, s, coll, nil)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	got := docs[0]
	if got["_id"] != "a" || got["tag"] != "SendEmail" {
		t.Errorf("unexpected document %v", got)
	}
	if !store.Match(got, store.Filter{"n": 42}) {
		t.Errorf("numeric field lost: %v", got["n"])
	}
	args, ok := got["args"].([]any)
	if !ok || len(args) != 2 || args[0] != "x@y.z" || args[1] != "hello" {
		t.Errorf("args = %#v", got["args"])
	}
}

func testFindFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Insert(ctx, coll, store.Document{"_id": id, "group": id == "b"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	docs := collect(t, s, coll, store.Filter{"_id": "b"})
	if len(docs) != 1 || docs[0]["_id"] != "b" {
		t.Fatalf("expected only b, got %v", docs)
	}
	if docs := collect(t, s, coll, store.Filter{"_id": "zzz"}); len(docs) != 0 {
		t.Fatalf("expected no documents, got %v", docs)
	}
	if docs := collect(t, s, "storetest:missing", nil); len(docs) != 0 {
		t.Fatalf("expected missing collection to be empty, got %v", docs)
	}
}

func testFindRestartable(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	if err := s.Insert(ctx, coll, store.Document{"_id": "a"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	seq := s.Find(ctx, coll, nil)

	count := func() int {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			n++
		}
		return n
	}

	if n := count(); n != 1 {
		t.Fatalf("first pass: expected 1, got %d", n)
	}
	if err := s.Insert(ctx, coll, store.Document{"_id": "b"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n := count(); n != 2 {
		t.Fatalf("second pass should re-query, expected 2, got %d", n)
	}
}

func testFindEarlyBreak(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	for i := range 5 {
		if err := s.Insert(ctx, coll, store.Document{"_id": fmt.Sprint(i)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n := 0
	for _, err := range s.Find(ctx, coll, nil) {
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2, got %d", n)
	}
}

func testPopEmpty(t *testing.T, s store.Store) {
	doc, err := s.FindAndRemoveOne(context.Background(), collection(t))
	if err != nil {
		t.Fatalf("FindAndRemoveOne: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %v", doc)
	}
}

func testPopRemoves(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	if err := s.Insert(ctx, coll, store.Document{"_id": "only", "tag": "T"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	doc, err := s.FindAndRemoveOne(ctx, coll)
	if err != nil {
		t.Fatalf("FindAndRemoveOne: %v", err)
	}
	if doc == nil || doc["_id"] != "only" || doc["tag"] != "T" {
		t.Fatalf("unexpected document %v", doc)
	}

	n, err := s.Count(ctx, coll, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty collection after pop, got %d", n)
	}
}

func testPopExclusive(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	const total = 40
	for i := range total {
		if err := s.Insert(ctx, coll, store.Document{"_id": fmt.Sprintf("job-%d", i)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int, total)
	)

	g, gctx := errgroup.WithContext(ctx)
	for range 8 {
		g.Go(func() error {
			for {
				doc, err := s.FindAndRemoveOne(gctx, coll)
				if err != nil {
					return err
				}
				if doc == nil {
					return nil
				}
				mu.Lock()
				seen[fmt.Sprint(doc["_id"])]++
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent pop: %v", err)
	}

	if len(seen) != total {
		t.Fatalf("expected %d distinct documents, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("document %s popped %d times", id, n)
		}
	}
}

func testRemove(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	for _, id := range []string{"a", "b", "b"} {
		if err := s.Insert(ctx, coll, store.Document{"_id": id}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	removed, err := s.Remove(ctx, coll, store.Filter{"_id": "b"})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	removed, err = s.Remove(ctx, coll, store.Filter{"_id": "zzz"})
	if err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}

	docs := collect(t, s, coll, nil)
	if len(docs) != 1 || docs[0]["_id"] != "a" {
		t.Errorf("expected only a to remain, got %v", docs)
	}
}

func testCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	n, err := s.Count(ctx, coll, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Insert(ctx, coll, store.Document{"_id": id, "even": id == "b"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if n, _ := s.Count(ctx, coll, nil); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if n, _ := s.Count(ctx, coll, store.Filter{"even": true}); n != 1 {
		t.Errorf("expected 1 with filter, got %d", n)
	}
}

func testDropCollection(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)

	if err := s.Insert(ctx, coll, store.Document{"_id": "a"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.DropCollection(ctx, coll); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if n, _ := s.Count(ctx, coll, nil); n != 0 {
		t.Fatalf("expected 0 after drop, got %d", n)
	}
	if err := s.DropCollection(ctx, coll); err != nil {
		t.Fatalf("dropping a missing collection should succeed: %v", err)
	}
}

func testUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	coll := collection(t)
	key := store.Filter{"_id": "w1"}

	if err := s.Upsert(ctx, coll, key, store.Document{"queues": []any{"a"}}); err != nil {
		t.Fatalf("Upsert insert: %v", err)
	}
	if err := s.Upsert(ctx, coll, key, store.Document{"queues": []any{"b", "c"}}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	docs := collect(t, s, coll, nil)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document after two upserts, got %d", len(docs))
	}
	if docs[0]["_id"] != "w1" {
		t.Errorf("key not merged into document: %v", docs[0])
	}
	queues, _ := docs[0]["queues"].([]any)
	if len(queues) != 2 || queues[0] != "b" {
		t.Errorf("document not replaced: %v", docs[0])
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
