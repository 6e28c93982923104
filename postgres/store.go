// Package postgres archives sessions, turns and backend requests in PostgreSQL.
package postgres

import (
	"context"

	llama "github.com/gamazeps/encode-llama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements llama.Store on a pgx pool.
type PGStore struct {
	db *pgxpool.Pool
}

// New creates a PGStore. The caller owns the pool.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Ensure PGStore implements llama.Store at compile time.
var _ llama.Store = (*PGStore)(nil)
