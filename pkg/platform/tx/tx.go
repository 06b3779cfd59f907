// Package tx carries a database/sql transaction through context so the audit
// store can join the transaction of the business write it records. An audit
// row appended inside a rolled-back transaction disappears with it.
package tx

import (
	"context"
	"database/sql"
	"fmt"
)

type ctxKey struct{}

// WithTx returns a context carrying the transaction. Stores that find one use
// it instead of the pool.
func WithTx(ctx context.Context, dbTx *sql.Tx) context.Context {
	if dbTx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, dbTx)
}

// From reports the transaction carried by ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	dbTx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return dbTx, ok
}

// Run executes fn inside a transaction placed in context, committing on nil
// and rolling back on error or panic.
func Run(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	dbTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			dbTx.Rollback() //nolint:errcheck // rollback on panic path
			panic(p)
		}
	}()

	if err = fn(WithTx(ctx, dbTx)); err != nil {
		dbTx.Rollback() //nolint:errcheck // original error takes precedence
		return err
	}
	return dbTx.Commit()
}
