package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/identity-service/internal/core/domain"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Querier abstracts both *pgxpool.Pool and pgx.Tx so repositories can run
// inside or outside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxStore implements domain.UnitOfWork using pgxpool.
type PgxStore struct {
	pool *pgxpool.Pool
}

var _ domain.UnitOfWork = (*PgxStore)(nil)

// NewPgxStore creates a new PgxStore.
func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

// WithinTx runs fn inside a read-committed transaction. Uniqueness
// constraints, not the isolation level, break races between concurrent
// provisioning attempts.
func (s *PgxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Repositories returns repositories bound to the pool.
func (s *PgxStore) Repositories() domain.Repositories {
	return bind(s.pool)
}

func bind(q Querier) domain.Repositories {
	return domain.Repositories{
		Sessions:   NewSessionRepository(q),
		Users:      NewUserRepository(q),
		Identities: NewIdentityRepository(q),
	}
}

// mapPgError classifies constraint violations. Everything else stays
// unclassified and surfaces as an internal error.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return domain.Classify(domain.ErrConflict, err)
	case pgErrForeignKeyViolation:
		return domain.Classify(domain.ErrNotFound, err)
	default:
		return err
	}
}
