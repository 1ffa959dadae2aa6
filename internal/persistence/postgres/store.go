// Package postgres implements the domain stores on PostgreSQL via pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"example.com/activitydedup/internal/domain"
)

// Pool is the subset of *pgxpool.Pool the stores use. pgxmock.PgxPoolIface
// satisfies it as well.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store serves activities, planned workouts and merge candidate flags. Every
// transaction pins app.owner_id for the row level security policies and
// every statement filters by owner_id as well.
type Store struct {
	pool Pool
}

// NewStore constructs a Store.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// upstream wraps a database error for callers that test domain.ErrUpstream.
func upstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	return domain.Upstream(eris.Wrap(err, "postgres: "+msg))
}

// withOwnerTx runs fn in a transaction scoped to ownerID. Errors returned by
// fn are passed through untouched; fn is responsible for wrapping its own
// database failures.
func (s *Store) withOwnerTx(ctx context.Context, ownerID string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return upstream(err, "begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return upstream(err, "set owner scope")
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return upstream(err, "commit")
	}
	return nil
}

// WithinTx implements domain.UnitOfWork.
func (s *Store) WithinTx(ctx context.Context, ownerID string, fn func(domain.Tx) error) error {
	return s.withOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, ownerID: ownerID})
	})
}
