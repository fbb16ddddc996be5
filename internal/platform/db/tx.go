package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// PostgreSQL error codes surfaced to callers as concurrency failures.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// ErrSerialization is returned by WithinTx when PostgreSQL aborts the
// transaction because a concurrent transaction touched the same rows or
// advisory lock partition. The engine does not retry; callers resubmit.
var ErrSerialization = errors.New("transaction aborted by a concurrent update")

// Queryable is the subset of pgx shared by pools, pooled connections and
// transactions.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext returns the transaction opened by TxManager.WithinTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn returns the active transaction from ctx, falling back to the pool.
// Repositories call this on every statement so they join the caller's
// transaction transparently.
func Conn(ctx context.Context, pool *pgxpool.Pool) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxManager runs units of work inside SERIALIZABLE transactions and hands out
// transaction-scoped advisory locks.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx runs fn inside a SERIALIZABLE transaction. A nested call reuses the
// outer transaction. fn's error rolls everything back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}

// LockPartitions takes pg_advisory_xact_lock on every key, in sorted order so
// two transactions locking overlapping sets cannot deadlock. The locks are
// released when the surrounding transaction ends.
func (m *TxManager) LockPartitions(ctx context.Context, keys ...string) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("lock partitions: no transaction in context")
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	prev := ""
	for i, k := range sorted {
		if i > 0 && k == prev {
			continue
		}
		prev = k
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return fmt.Errorf("lock partition %q: %w", k, translate(err))
		}
	}
	return nil
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", ErrSerialization, pgErr.Message)
		}
	}
	return err
}
