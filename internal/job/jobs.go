// Package job assembles the sales jobs from the batch engine and the sales components.
package job

import (
	"github.com/tigerroll/salesync/internal/sales/domain"
	"github.com/tigerroll/salesync/internal/sales/fetch"
	"github.com/tigerroll/salesync/internal/sales/reader"
	"github.com/tigerroll/salesync/internal/sales/transform"
	"github.com/tigerroll/salesync/internal/sales/writer"
	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/core/job/runner"
	"github.com/tigerroll/salesync/pkg/batch/core/metrics"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
	"github.com/tigerroll/salesync/pkg/batch/engine/step"
	"github.com/tigerroll/salesync/pkg/batch/engine/step/item"
	"github.com/tigerroll/salesync/pkg/batch/engine/step/tasklet"
)

const (
	// ExportSalesJobName is the job writing sales_info to Parquet.
	ExportSalesJobName = "export-sales-job"

	DownloadFileStepName = "downloadFileStep"
	LoadStepName         = "loadStep"
	ExportStepName       = "exportStep"
)

// Infrastructure is what every job shares: metadata persistence and observers.
type Infrastructure struct {
	Repository     repository.JobRepository
	Recorder       metrics.MetricRecorder
	Tracer         metrics.Tracer
	JobListeners   []port.JobRunListener
	StepListeners  []port.StepRunListener
	ChunkListeners []port.ChunkListener
}

func (i Infrastructure) lifecycle() step.Lifecycle {
	return step.NewLifecycle(i.Repository, i.StepListeners, i.Recorder, i.Tracer)
}

// SyncSalesJob describes the fetch-then-load job.
type SyncSalesJob struct {
	Name          string
	Fetcher       fetch.Fetcher
	DefaultBucket string
	// TxManager opens transactions on the connection holding sales_info.
	TxManager tx.TransactionManager
	ChunkSize int
}

// Build checks that every SalesInfo field has a source column before any row
// is read, then wires downloadFileStep and loadStep.
func (j SyncSalesJob) Build(infra Infrastructure) (*runner.FlowJob, error) {
	if err := transform.CheckSchema(); err != nil {
		return nil, err
	}
	lifecycle := infra.lifecycle()

	download := tasklet.NewTaskletStep(
		DownloadFileStepName,
		fetch.NewDownloadFileTasklet(j.Fetcher, j.DefaultBucket),
		lifecycle,
	)
	load := item.NewChunkStep[domain.SourceRow, domain.SalesInfo](
		LoadStepName,
		reader.NewSalesCSVReader(),
		transform.NewSalesTransformer(),
		writer.NewSalesInfoWriter(),
		j.TxManager,
		lifecycle,
		item.WithChunkSize(j.ChunkSize),
		item.WithChunkListeners(infra.ChunkListeners...),
	)
	return runner.NewFlowJob(j.Name, []port.Step{download, load}, infra.Repository, infra.JobListeners, infra.Recorder, infra.Tracer), nil
}

// NewExportSalesJob wraps the export tasklet in a single-step job.
func NewExportSalesJob(export port.Tasklet, infra Infrastructure) *runner.FlowJob {
	steps := []port.Step{tasklet.NewTaskletStep(ExportStepName, export, infra.lifecycle())}
	return runner.NewFlowJob(ExportSalesJobName, steps, infra.Repository, infra.JobListeners, infra.Recorder, infra.Tracer)
}
