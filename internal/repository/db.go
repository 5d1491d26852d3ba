package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned by writes that matched no row. Reads report a
	// miss as (nil, nil) instead.
	ErrNotFound = errors.New("row not found")
	// ErrVersionConflict means a conditional write lost a race with another writer.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInsufficientStock means a conditional stock decrement matched no row.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicate wraps unique constraint violations.
	ErrDuplicate = errors.New("duplicate key")
)

const uniqueViolation = "23505"

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use, so
// helpers run the same way inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
