// Package writer persists sales records inside the chunk transaction.
package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/salesync/internal/sales/domain"
	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const moduleName = "writer.SalesInfoWriter"

// SalesInfoWriter inserts each chunk as one multi-row INSERT.
type SalesInfoWriter struct{}

var _ port.ItemWriter[domain.SalesInfo] = (*SalesInfoWriter)(nil)

func NewSalesInfoWriter() *SalesInfoWriter {
	return &SalesInfoWriter{}
}

// Write inserts items through t. Any failure is a WriteError; the caller rolls the chunk back.
func (w *SalesInfoWriter) Write(ctx context.Context, t tx.Tx, items []domain.SalesInfo) error {
	if len(items) == 0 {
		return nil
	}
	if err := t.Insert(ctx, &items); err != nil {
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to insert %d sales records into %s", len(items), domain.SalesInfo{}.TableName()), err)
	}
	logger.Debugf("SalesInfoWriter: inserted %d records on '%s'.", len(items), t.Resource())
	return nil
}
