package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/salesync/pkg/batch/core/tx"
)

// Tx is a gorm transaction bound to one named connection.
type Tx struct {
	db       *gorm.DB
	resource string
}

var _ tx.Tx = (*Tx)(nil)

// Resource returns the name of the connection that owns the transaction.
func (t *Tx) Resource() string { return t.resource }

// GormDB returns the transaction handle.
func (t *Tx) GormDB() *gorm.DB { return t.db }

func (t *Tx) Insert(ctx context.Context, value interface{}) error {
	return t.db.WithContext(ctx).Create(value).Error
}

// Upsert inserts value, updating updateColumns when conflictColumns collide.
// With no updateColumns a conflicting row is left unchanged.
func (t *Tx) Upsert(ctx context.Context, value interface{}, conflictColumns, updateColumns []string) error {
	onConflict := clause.OnConflict{}
	for _, c := range conflictColumns {
		onConflict.Columns = append(onConflict.Columns, clause.Column{Name: c})
	}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}
	return t.db.WithContext(ctx).Clauses(onConflict).Create(value).Error
}

// TransactionManager begins transactions on a single connection.
type TransactionManager struct {
	db       *gorm.DB
	resource string
}

var _ tx.TransactionManager = (*TransactionManager)(nil)

// NewTransactionManager returns a manager for the named connection.
func NewTransactionManager(resource string, db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db, resource: resource}
}

func (m *TransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	db := m.db.WithContext(ctx).Begin(txOpts)
	if db.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.resource, db.Error)
	}
	return &Tx{db: db, resource: m.resource}, nil
}

func (m *TransactionManager) Commit(t tx.Tx) error {
	gt, ok := t.(*Tx)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", t)
	}
	return gt.db.Commit().Error
}

func (m *TransactionManager) Rollback(t tx.Tx) error {
	gt, ok := t.(*Tx)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", t)
	}
	return gt.db.Rollback().Error
}

// DBFromContext returns the transaction carried by ctx when it belongs to resource,
// otherwise fallback bound to ctx.
func DBFromContext(ctx context.Context, resource string, fallback *gorm.DB) *gorm.DB {
	if t, ok := tx.FromContext(ctx); ok && t.Resource() == resource {
		if gt, ok := t.(*Tx); ok {
			return gt.db.WithContext(ctx)
		}
	}
	return fallback.WithContext(ctx)
}
