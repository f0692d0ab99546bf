package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction, passing the
// underlying transaction handle via `tx`.
//
// Repositories that receive a tx lock the rows they read (SELECT ... FOR UPDATE) and run
// their writes on the same handle, so everything fn does commits or rolls back together.
// Repositories MUST accept a nil tx (non-transactional path).
//
// USAGE
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
// order, err := orders.FindByID(ctx, tx, id)
// ...
// return payments.Insert(ctx, tx, rec)
// })
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
