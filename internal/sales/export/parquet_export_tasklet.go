// Package export writes the loaded sales table to object storage as Parquet.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gorm.io/gorm"

	"github.com/tigerroll/salesync/internal/sales/domain"
	"github.com/tigerroll/salesync/pkg/batch/adapter/storage"
	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const moduleName = "export.ParquetExportTasklet"

// DateParam is the job parameter overriding the dt= partition of the export.
const DateParam = "export_date"

// PartitionLayout formats the dt= partition.
const PartitionLayout = "2006-01-02"

// ParquetExportTasklet streams sales_info out of the workload database and
// uploads it as a single Parquet object under <prefix>/dt=YYYY-MM-DD/.
type ParquetExportTasklet struct {
	db     *gorm.DB
	store  storage.ObjectStore
	bucket string
	cfg    config.ExportConfig
	codec  parquet.CompressionCodec
	now    func() time.Time
}

var _ port.Tasklet = (*ParquetExportTasklet)(nil)

// Option configures a ParquetExportTasklet.
type Option func(*ParquetExportTasklet)

// WithClock replaces time.Now for the partition date.
func WithClock(now func() time.Time) Option {
	return func(t *ParquetExportTasklet) { t.now = now }
}

// NewParquetExportTasklet validates cfg. An empty cfg.Bucket falls back to defaultBucket.
func NewParquetExportTasklet(db *gorm.DB, store storage.ObjectStore, defaultBucket string, cfg config.ExportConfig, opts ...Option) (*ParquetExportTasklet, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("invalid compression '%s'", cfg.Compression), err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" {
		return nil, exception.NewBatchError(moduleName, "no bucket configured for the export", nil)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	t := &ParquetExportTasklet{db: db, store: store, bucket: bucket, cfg: cfg, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Execute exports every row. An empty table uploads nothing and ends with NOOP.
func (t *ParquetExportTasklet) Execute(ctx context.Context, jobRun *model.JobRun, stepRun *model.StepRun) (model.ExitStatus, error) {
	partition := t.now().Format(PartitionLayout)
	if d, ok := jobRun.Parameters.GetString(DateParam); ok && d != "" {
		if _, err := time.Parse(PartitionLayout, d); err != nil {
			return model.ExitStatusFailed, exception.NewBatchError(moduleName, fmt.Sprintf("invalid %s '%s'", DateParam, d), err)
		}
		partition = d
	}

	rows, err := t.db.WithContext(ctx).Model(&domain.SalesInfo{}).Order("sale_id, id").Rows()
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(moduleName, "failed to query sales_info", err)
	}
	defer rows.Close()

	itemsChan := make(chan domain.SalesInfo, t.cfg.BufferSize)
	var (
		wg      sync.WaitGroup
		readErr error
	)
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(itemsChan)
		for rows.Next() {
			var item domain.SalesInfo
			if err := t.db.ScanRows(rows, &item); err != nil {
				readErr = exception.NewBatchError(moduleName, "failed to scan sales_info row", err)
				return
			}
			select {
			case itemsChan <- item:
			case <-scanCtx.Done():
				readErr = scanCtx.Err()
				return
			}
		}
		readErr = rows.Err()
	}()

	buf, count, encodeErr := t.encode(itemsChan)
	if encodeErr != nil {
		cancel()
		// Unblock the scanner so it can observe the cancellation.
		for range itemsChan {
		}
	}
	wg.Wait()

	var result error
	if readErr != nil {
		result = multierror.Append(result, readErr)
	}
	if encodeErr != nil {
		result = multierror.Append(result, encodeErr)
	}
	if result != nil {
		return model.ExitStatusFailed, result
	}

	stepRun.ReadCount = count
	if count == 0 {
		logger.Infof("ParquetExportTasklet: sales_info is empty, nothing exported.")
		return model.ExitStatusNoop, nil
	}

	key := ObjectKey(t.cfg.OutputPrefix, partition, t.now())
	logger.Debugf("ParquetExportTasklet: uploading %d bytes to %s/%s", buf.Len(), t.bucket, key)
	if err := t.store.Upload(ctx, t.bucket, key, buf); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(moduleName, fmt.Sprintf("failed to upload %s", key), err)
	}
	stepRun.WriteCount = count
	logger.Infof("ParquetExportTasklet: exported %d rows to %s/%s", count, t.bucket, key)
	return model.ExitStatusCompleted, nil
}

// encode drains items into one row group of an in-memory Parquet file.
func (t *ParquetExportTasklet) encode(items <-chan domain.SalesInfo) (buf *bytes.Buffer, count int64, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(domain.SalesInfo), 4)
	if err != nil {
		return nil, 0, exception.NewBatchError(moduleName, "failed to create Parquet writer", err)
	}
	pw.CompressionType = t.codec

	for item := range items {
		if err := pw.Write(item); err != nil {
			return nil, count, exception.NewBatchError(moduleName, fmt.Sprintf("failed to encode sale %d", item.SaleID), err)
		}
		count++
	}
	if count == 0 {
		return buf, 0, nil
	}

	// WriteStop panics on some malformed schemas instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewBatchError(moduleName, fmt.Sprintf("Parquet writer panicked during WriteStop: %v", r), nil)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, count, exception.NewBatchError(moduleName, "failed to finalize Parquet file", err)
	}
	return buf, count, nil
}

// ObjectKey builds the Hive-style key of an export written at ts.
func ObjectKey(prefix, partition string, ts time.Time) string {
	name := fmt.Sprintf("sales_info_%s_%s.parquet", ts.Format("20060102150405"), uuid.NewString()[:8])
	return path.Join(strings.Trim(prefix, "/"), "dt="+partition, name)
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}
