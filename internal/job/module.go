package job

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/salesync/internal/sales/export"
	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/salesync/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	"github.com/tigerroll/salesync/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/core/metrics"
	"github.com/tigerroll/salesync/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// RunIDParam is the parameter advanced to start a fresh instance of a job.
const RunIDParam = incrementer.DefaultRunIDKey

// InfrastructureParams collects the shared job infrastructure from the fx graph.
type InfrastructureParams struct {
	fx.In
	Repository     repository.JobRepository
	Recorder       metrics.MetricRecorder
	Tracer         metrics.Tracer
	JobListeners   []port.JobRunListener  `group:"job_listeners"`
	StepListeners  []port.StepRunListener `group:"step_listeners"`
	ChunkListeners []port.ChunkListener   `group:"chunk_listeners"`
}

// NewInfrastructure flattens the fx parameters.
func NewInfrastructure(p InfrastructureParams) Infrastructure {
	return Infrastructure{
		Repository:     p.Repository,
		Recorder:       p.Recorder,
		Tracer:         p.Tracer,
		JobListeners:   p.JobListeners,
		StepListeners:  p.StepListeners,
		ChunkListeners: p.ChunkListeners,
	}
}

// JobsParams are the dependencies of the sales jobs.
type JobsParams struct {
	fx.In
	Config        *config.Config
	Infra         Infrastructure
	Resolver      *gormadapter.ConnectionResolver
	Fetcher       *storage.Fetcher
	Store         storage.ObjectStore
	StorageConfig storageconfig.StorageConfig
}

// NewJobs builds sync-sales-job and export-sales-job on the workload connection.
func NewJobs(p JobsParams) ([]port.Job, error) {
	ref := p.Config.Salesync.Infrastructure.WorkloadDBRef
	conn, err := p.Resolver.ResolveGorm(context.Background(), ref)
	if err != nil {
		return nil, err
	}

	syncJob, err := SyncSalesJob{
		Name:          p.Config.Salesync.Batch.JobName,
		Fetcher:       p.Fetcher,
		DefaultBucket: p.StorageConfig.Bucket,
		TxManager:     gormadapter.NewTransactionManager(ref, conn.DB()),
		ChunkSize:     p.Config.Salesync.Batch.ChunkSize,
	}.Build(p.Infra)
	if err != nil {
		return nil, err
	}

	exporter, err := export.NewParquetExportTasklet(conn.DB(), p.Store, p.StorageConfig.Bucket, p.Config.Salesync.Export)
	if err != nil {
		return nil, err
	}
	return []port.Job{syncJob, NewExportSalesJob(exporter, p.Infra)}, nil
}

// NewJobController registers the jobs. On shutdown active runs are asked to
// stop at their next chunk boundary.
func NewJobController(lc fx.Lifecycle, cfg *config.Config, infra Infrastructure, jobs []port.Job) *usecase.JobController {
	controller := usecase.NewJobController(infra.Repository, incrementer.NewRunIDIncrementer(RunIDParam), jobs...)
	ic := cfg.Salesync.Infrastructure
	controller.SetStopPolicy(time.Duration(ic.StopPollSeconds)*time.Second, time.Duration(ic.StaleRunSeconds)*time.Second)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			var result *multierror.Error
			if err := controller.Shutdown(ctx); err != nil {
				logger.Warnf("JobController: active runs did not stop in time: %v", err)
				result = multierror.Append(result, err)
			}
			if err := controller.Close(); err != nil {
				result = multierror.Append(result, err)
			}
			return result.ErrorOrNil()
		},
	})
	return controller
}

// Module provides the sales jobs and the JobController running them.
var Module = fx.Options(
	fx.Provide(
		NewInfrastructure,
		NewJobs,
		NewJobController,
	),
)
