package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("repository: not found")
	ErrAlreadyExists   = errors.New("repository: already exists")
	ErrVersionConflict = errors.New("repository: version conflict")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02"
)

// DBTX is the part of pgx shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
	case foreignKeyViolation:
		// the referenced ticket is gone
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
	case invalidTextRepr:
		// ids are UUIDs; a malformed one cannot match any row
		return ErrNotFound
	}
	return err
}

func pageBounds(limit, offset int) (uint64, uint64) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uint64(limit), uint64(offset)
}
