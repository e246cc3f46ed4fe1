// Package test provides mocks and fixtures shared by the batch tests.
package test

import (
	"context"
	"database/sql"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/salesync/pkg/batch/core/tx"
)

// MockTx is a testify mock of tx.Tx.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Insert(ctx context.Context, value interface{}) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockTx) Upsert(ctx context.Context, value interface{}, conflictColumns, updateColumns []string) error {
	return m.Called(ctx, value, conflictColumns, updateColumns).Error(0)
}

func (m *MockTx) Resource() string {
	return m.Called().String(0)
}

// MockTxManager is a testify mock of tx.TransactionManager.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

func (m *MockTxManager) Commit(t tx.Tx) error {
	return m.Called(t).Error(0)
}

func (m *MockTxManager) Rollback(t tx.Tx) error {
	return m.Called(t).Error(0)
}

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)

// FakeTx is a transaction that buffers inserted values until commit.
type FakeTx struct {
	resource string
	pending  []interface{}
}

func (t *FakeTx) Insert(_ context.Context, value interface{}) error {
	t.pending = append(t.pending, value)
	return nil
}

func (t *FakeTx) Upsert(ctx context.Context, value interface{}, _, _ []string) error {
	return t.Insert(ctx, value)
}

func (t *FakeTx) Resource() string { return t.resource }

// FakeTxManager records transaction outcomes. CommitErr, when set, decides
// whether the n-th commit (1-based) fails.
type FakeTxManager struct {
	Resource  string
	CommitErr func(n int) error

	mu        sync.Mutex
	commits   int
	rollbacks int
	committed []interface{}
}

func NewFakeTxManager(resource string) *FakeTxManager {
	return &FakeTxManager{Resource: resource}
}

func (m *FakeTxManager) Begin(context.Context, ...*sql.TxOptions) (tx.Tx, error) {
	return &FakeTx{resource: m.Resource}, nil
}

func (m *FakeTxManager) Commit(t tx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.CommitErr != nil {
		if err := m.CommitErr(m.commits); err != nil {
			return err
		}
	}
	m.committed = append(m.committed, t.(*FakeTx).pending...)
	return nil
}

func (m *FakeTxManager) Rollback(tx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return nil
}

// Commits counts Commit calls, failed ones included.
func (m *FakeTxManager) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *FakeTxManager) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

// Committed returns the values of successfully committed transactions in insert order.
func (m *FakeTxManager) Committed() []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interface{}(nil), m.committed...)
}
