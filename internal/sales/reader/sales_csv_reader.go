// Package reader decodes sales CSV files into domain.SourceRow values.
package reader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tigerroll/salesync/internal/sales/domain"
	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const (
	moduleName = "reader.SalesCSVReader"
	// FieldCount is the number of columns of a data line.
	FieldCount = 7
	// headerLines precede the first data line; csv line numbers are offset by it.
	headerLines = 1
)

// SalesCSVReader is a forward-only cursor over a comma-delimited sales file.
// The first line is a header and is always skipped.
type SalesCSVReader struct {
	file     *os.File
	csv      *csv.Reader
	path     string
	consumed int64
}

var _ port.ItemReader[domain.SourceRow] = (*SalesCSVReader)(nil)

// NewSalesCSVReader creates an unopened reader.
func NewSalesCSVReader() *SalesCSVReader {
	return &SalesCSVReader{}
}

// Open opens the file named by the job context and skips the header plus
// the cp.LinesConsumed data lines already committed by a previous attempt.
func (r *SalesCSVReader) Open(ctx context.Context, jobCtx model.JobContext, cp model.Checkpoint) error {
	path, ok := jobCtx.InputFilePath()
	if !ok {
		return exception.NewMissingInputError(moduleName, "job context has no input.file.path; the bucket held no matching object")
	}
	f, err := os.Open(path)
	if err != nil {
		missing := exception.NewMissingInputError(moduleName, fmt.Sprintf("cannot open input file %s", path))
		missing.OriginalErr = err
		return missing
	}
	r.file = f
	r.path = path
	r.consumed = 0
	// The header is skipped as a raw line; its content is never parsed.
	br := bufio.NewReader(f)
	if _, err := br.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return r.decodeError(err)
	}
	r.csv = csv.NewReader(br)
	r.csv.FieldsPerRecord = -1
	r.csv.ReuseRecord = true

	for r.consumed < cp.LinesConsumed {
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return exception.NewDecodeError(moduleName, r.consumed+1, fmt.Sprintf("file %s ends before checkpoint at %d data lines", path, cp.LinesConsumed), nil)
			}
			return r.decodeError(err)
		}
		r.consumed++
	}
	if cp.LinesConsumed > 0 {
		logger.Debugf("SalesCSVReader: skipped %d committed lines of %s.", cp.LinesConsumed, path)
	}
	return nil
}

// Read decodes the next data line.
func (r *SalesCSVReader) Read(ctx context.Context) (domain.SourceRow, error) {
	if r.csv == nil {
		return domain.SourceRow{}, exception.NewBatchError(moduleName, "reader is not open", nil)
	}
	record, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return domain.SourceRow{}, port.ErrNoMoreItems
	}
	if err != nil {
		return domain.SourceRow{}, r.decodeError(err)
	}
	line, _ := r.csv.FieldPos(0)
	row, err := parseRow(record)
	if err != nil {
		return domain.SourceRow{}, exception.NewDecodeError(moduleName, int64(line+headerLines), "malformed sales record", err)
	}
	r.consumed++
	return row, nil
}

// Position is the number of data lines returned so far, including those skipped on Open.
func (r *SalesCSVReader) Position() int64 {
	return r.consumed
}

func (r *SalesCSVReader) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.csv = nil, nil
	return err
}

func (r *SalesCSVReader) decodeError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return exception.NewDecodeError(moduleName, int64(pe.StartLine+headerLines), "unparseable CSV line", err)
	}
	return exception.NewDecodeError(moduleName, 0, fmt.Sprintf("failed to read %s", r.path), err)
}

func parseRow(record []string) (domain.SourceRow, error) {
	if len(record) != FieldCount {
		return domain.SourceRow{}, fmt.Errorf("expected %d fields, got %d", FieldCount, len(record))
	}
	var (
		row domain.SourceRow
		err error
	)
	if row.SaleID, err = parseInt("sale_id", record[0]); err != nil {
		return row, err
	}
	if row.ProductID, err = parseInt("product_id", record[1]); err != nil {
		return row, err
	}
	if row.CustomerID, err = parseInt("customer_id", record[2]); err != nil {
		return row, err
	}
	row.SaleDate = strings.TrimSpace(record[3])
	if row.SaleAmount, err = strconv.ParseFloat(strings.TrimSpace(record[4]), 64); err != nil {
		return row, fmt.Errorf("sale_amount: %w", err)
	}
	row.Location = strings.TrimSpace(record[5])
	row.Country = strings.TrimSpace(record[6])
	return row, nil
}

func parseInt(field, s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
