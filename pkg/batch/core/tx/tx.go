// Package tx abstracts transactions so chunk boundaries do not depend on a specific database backend.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor is the write surface available inside a transaction.
type TxExecutor interface {
	// Insert creates value, which may be a struct pointer or a slice of records.
	Insert(ctx context.Context, value interface{}) error
	// Upsert inserts value or, when conflictColumns collide, updates updateColumns.
	// An empty updateColumns means DO NOTHING on conflict.
	Upsert(ctx context.Context, value interface{}, conflictColumns, updateColumns []string) error
}

// Tx represents an ongoing transaction.
type Tx interface {
	TxExecutor
	// Resource names the connection the transaction was opened on (e.g. "metadata", "workload").
	Resource() string
}

// TransactionManager manages the begin/commit/rollback lifecycle of one connection.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

// Participant is implemented by stores that write inside a transaction
// carried by the context when it was opened on their resource.
type Participant interface {
	Resource() string
}

// Joins reports whether store writes inside t.
func Joins(store interface{}, t Tx) bool {
	p, ok := store.(Participant)
	return ok && p.Resource() == t.Resource()
}

type txKey struct{}

// WithTx returns a context carrying t. Repositories opened on the same resource join it.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the transaction carried by ctx, if any.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok
}
