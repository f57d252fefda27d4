// Package postgres is the durable Postgres-backed implementation of the
// storage interfaces declared by internal/ledger (and, eventually, the
// per-subsystem derived-state indexes of spec.md §6). It is adapted from
// the teacher's pkg/storage/postgres.BaseStore, swapped onto sqlx so the
// module's jmoiron/sqlx and lib/pq dependencies - listed in go.mod but
// never exercised by the teacher's own hand-rolled migration runner - get
// a real caller.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Open connects to a Postgres database via dataSourceName (a standard
// libpq connection string or URL) and verifies it with a ping.
func Open(ctx context.Context, dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// baseStore provides the transaction-or-pool querier selection shared by
// every table-backed store in this package.
type baseStore struct {
	db        *sqlx.DB
	tableName string
}

func newBaseStore(db *sqlx.DB, tableName string) baseStore {
	return baseStore{db: db, tableName: tableName}
}

type txKey struct{}

// TxFromContext extracts an in-flight transaction from ctx, if any.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

// ContextWithTx attaches tx to ctx so nested store calls join it instead of
// opening a second connection.
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// querier is the subset of *sqlx.DB / *sqlx.Tx every store method needs.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func (s baseStore) querier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a new transaction, committing on success and
// rolling back on any error (including a panic, which is re-raised after
// rollback).
func (s baseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the signal Append uses to detect a
// concurrent writer racing the same sequence number.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
