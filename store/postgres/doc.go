// Package postgres implements store.Store on PostgreSQL using pgx/v5.
//
// All collections share one qu_documents table; each document is a JSONB
// row and filters are evaluated with JSONB containment (@>). Pops use
// DELETE ... FOR UPDATE SKIP LOCKED so that concurrent workers never
// receive the same row.
//
// JSON has a single number type, so integer arguments read back as
// float64.
//
// Usage:
//
//	s, err := postgres.New(ctx, "postgres://localhost:5432/qu?sslmode=disable")
//	if err != nil { ... }
//	if err := s.Migrate(ctx); err != nil { ... }
package postgres
