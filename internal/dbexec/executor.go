// Package dbexec is the SQL surface entry stores run on: a small executor
// interface, a *sql.DB implementation with per-statement deadlines, and
// transactions for multi-statement writes.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Rows is the subset of *sql.Rows stores iterate over.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs single statements.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Transactor is implemented by executors that can group statements.
// InTx commits when fn returns nil and rolls back otherwise, including when
// fn panics.
type Transactor interface {
	InTx(ctx context.Context, fn func(QueryExecutor) error) error
}

// StandardExecutor runs statements on a *sql.DB. A positive timeout bounds
// each statement including row iteration; inside InTx it bounds the whole
// transaction.
type StandardExecutor struct {
	db      *sql.DB
	timeout time.Duration
}

func NewStandardExecutor(db *sql.DB, timeout time.Duration) *StandardExecutor {
	return &StandardExecutor{db: db, timeout: timeout}
}

func (e *StandardExecutor) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func() {}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	ctx, cancel := e.deadline(ctx)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &deadlineRows{Rows: rows, cancel: cancel}, nil
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	ctx, cancel := e.deadline(ctx)
	defer cancel()
	return e.db.ExecContext(ctx, query, args...)
}

func (e *StandardExecutor) InTx(ctx context.Context, fn func(QueryExecutor) error) (err error) {
	if e.db == nil {
		return sql.ErrConnDone
	}
	ctx, cancel := e.deadline(ctx)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()
	return fn(txExecutor{tx: tx})
}

// txExecutor runs statements inside an open transaction. The transaction's
// context already carries the deadline.
type txExecutor struct {
	tx *sql.Tx
}

func (t txExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t txExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// deadlineRows releases the statement deadline when the rows are closed.
type deadlineRows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *deadlineRows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}
