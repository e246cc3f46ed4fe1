// Package sql implements repository.JobRepository on a gorm connection.
//
// Writes join a transaction carried by the context when it was opened on the
// same connection, which lets a load step commit its checkpoint atomically
// with the chunk it covers.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

const module = "SQLJobRepository"

// JobRepository stores job metadata in SQL tables.
type JobRepository struct {
	db       *gorm.DB
	resource string
}

var (
	_ repository.JobRepository = (*JobRepository)(nil)
	_ tx.Participant           = (*JobRepository)(nil)
)

// NewJobRepository returns a repository on db. resource is the connection name
// used to recognize a joinable transaction.
func NewJobRepository(db *gorm.DB, resource string) *JobRepository {
	return &JobRepository{db: db, resource: resource}
}

// Resource is the connection name; a transaction on it is joined.
func (r *JobRepository) Resource() string { return r.resource }

func (r *JobRepository) conn(ctx context.Context) *gorm.DB {
	return gormadapter.DBFromContext(ctx, r.resource, r.db)
}

// --- JobInstance ---

func (r *JobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	if err := r.conn(ctx).Create(fromDomainJobInstance(instance)).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save job instance %s", instance.ID), err)
	}
	return nil
}

func (r *JobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	var e JobInstanceEntity
	if err := r.conn(ctx).Where("id = ?", id).Take(&e).Error; err != nil {
		return nil, notFound(err, repository.ErrJobInstanceNotFound, "find job instance "+id)
	}
	return toDomainJobInstance(&e), nil
}

func (r *JobRepository) FindJobInstance(ctx context.Context, jobName, paramsHash string) (*model.JobInstance, error) {
	var e JobInstanceEntity
	err := r.conn(ctx).
		Where("job_name = ? AND params_hash = ?", jobName, paramsHash).
		Take(&e).Error
	if err != nil {
		return nil, notFound(err, repository.ErrJobInstanceNotFound, "find job instance of "+jobName)
	}
	return toDomainJobInstance(&e), nil
}

func (r *JobRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error) {
	var e JobInstanceEntity
	err := r.conn(ctx).
		Where("job_name = ?", jobName).
		Order("create_time DESC").
		Take(&e).Error
	if err != nil {
		return nil, notFound(err, repository.ErrJobInstanceNotFound, "find latest job instance of "+jobName)
	}
	return toDomainJobInstance(&e), nil
}

// --- JobRun ---

func (r *JobRepository) SaveJobRun(ctx context.Context, run *model.JobRun) error {
	e := fromDomainJobRun(run)
	e.LastUpdated = time.Now()
	if err := r.conn(ctx).Create(e).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save job run %s", run.ID), err)
	}
	run.LastUpdated = e.LastUpdated
	return nil
}

func (r *JobRepository) UpdateJobRun(ctx context.Context, run *model.JobRun) error {
	e := fromDomainJobRun(run)
	now := time.Now()
	res := r.conn(ctx).Model(&JobRunEntity{}).
		Where("id = ? AND version = ?", run.ID, run.Version).
		Updates(map[string]interface{}{
			"status":        e.Status,
			"exit_status":   e.ExitStatus,
			"job_context":   e.Context,
			"failures":      e.Failures,
			"restart_count": e.RestartCount,
			"start_time":    e.StartTime,
			"end_time":      e.EndTime,
			"last_updated":  now,
			"version":       run.Version + 1,
		})
	if res.Error != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to update job run %s", run.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return exception.NewOptimisticLockingFailure(module, fmt.Sprintf("job run %s with version %d not found for update", run.ID, run.Version))
	}
	run.Version++
	run.LastUpdated = now
	return nil
}

func (r *JobRepository) FindJobRunByID(ctx context.Context, id string) (*model.JobRun, error) {
	var e JobRunEntity
	if err := r.conn(ctx).Where("id = ?", id).Take(&e).Error; err != nil {
		return nil, notFound(err, repository.ErrJobRunNotFound, "find job run "+id)
	}
	return r.withSteps(ctx, &e)
}

func (r *JobRepository) FindLatestJobRun(ctx context.Context, instanceID string) (*model.JobRun, error) {
	var e JobRunEntity
	err := r.conn(ctx).
		Where("job_instance_id = ?", instanceID).
		Order("create_time DESC, restart_count DESC").
		Take(&e).Error
	if err != nil {
		return nil, notFound(err, repository.ErrJobRunNotFound, "find latest job run of instance "+instanceID)
	}
	return r.withSteps(ctx, &e)
}

func (r *JobRepository) FindJobRunsByInstance(ctx context.Context, instanceID string) ([]*model.JobRun, error) {
	var entities []JobRunEntity
	err := r.conn(ctx).
		Where("job_instance_id = ?", instanceID).
		Order("create_time ASC, restart_count ASC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to list job runs of instance "+instanceID, err)
	}
	runs := make([]*model.JobRun, 0, len(entities))
	for i := range entities {
		runs = append(runs, toDomainJobRun(&entities[i]))
	}
	return runs, nil
}

func (r *JobRepository) withSteps(ctx context.Context, e *JobRunEntity) (*model.JobRun, error) {
	run := toDomainJobRun(e)
	steps, err := r.FindStepRunsByJobRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.StepRuns = steps
	return run, nil
}

// --- StepRun ---

func (r *JobRepository) SaveStepRun(ctx context.Context, step *model.StepRun) error {
	e := fromDomainStepRun(step)
	e.LastUpdated = time.Now()
	if err := r.conn(ctx).Create(e).Error; err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to save step run %s (%s)", step.Name, step.ID), err)
	}
	step.LastUpdated = e.LastUpdated
	return nil
}

func (r *JobRepository) UpdateStepRun(ctx context.Context, step *model.StepRun) error {
	e := fromDomainStepRun(step)
	now := time.Now()
	res := r.conn(ctx).Model(&StepRunEntity{}).
		Where("id = ? AND version = ?", step.ID, step.Version).
		Updates(map[string]interface{}{
			"status":       e.Status,
			"exit_status":  e.ExitStatus,
			"read_count":   e.ReadCount,
			"write_count":  e.WriteCount,
			"commit_count": e.CommitCount,
			"failures":     e.Failures,
			"failure_kind": e.FailureKind,
			"start_time":   e.StartTime,
			"end_time":     e.EndTime,
			"last_updated": now,
			"version":      step.Version + 1,
		})
	if res.Error != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to update step run %s (%s)", step.Name, step.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return exception.NewOptimisticLockingFailure(module, fmt.Sprintf("step run %s with version %d not found for update", step.ID, step.Version))
	}
	step.Version++
	step.LastUpdated = now
	return nil
}

// FindStepRunsByJobRun returns the steps in creation order with their checkpoints.
func (r *JobRepository) FindStepRunsByJobRun(ctx context.Context, jobRunID string) ([]*model.StepRun, error) {
	var entities []StepRunEntity
	err := r.conn(ctx).
		Where("job_run_id = ?", jobRunID).
		Order("create_time ASC").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to list step runs of job run "+jobRunID, err)
	}
	if len(entities) == 0 {
		return []*model.StepRun{}, nil
	}

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	var cps []CheckpointEntity
	if err := r.conn(ctx).Where("step_run_id IN ?", ids).Find(&cps).Error; err != nil {
		return nil, exception.NewBatchError(module, "failed to load checkpoints of job run "+jobRunID, err)
	}
	byStep := make(map[string]model.Checkpoint, len(cps))
	for _, cp := range cps {
		byStep[cp.StepRunID] = cp.CheckpointData
	}

	steps := make([]*model.StepRun, 0, len(entities))
	for i := range entities {
		s := toDomainStepRun(&entities[i])
		if cp, ok := byStep[s.ID]; ok {
			s.Checkpoint = &cp
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// --- Checkpoint ---

func (r *JobRepository) SaveCheckpoint(ctx context.Context, stepRunID string, cp model.Checkpoint) error {
	e := &CheckpointEntity{StepRunID: stepRunID, CheckpointData: cp, LastUpdated: time.Now()}
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "step_run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"checkpoint_data", "last_updated"}),
	}).Create(e).Error
	if err != nil {
		return exception.NewBatchError(module, "failed to save checkpoint of step run "+stepRunID, err)
	}
	return nil
}

func (r *JobRepository) FindCheckpoint(ctx context.Context, stepRunID string) (*model.Checkpoint, error) {
	var e CheckpointEntity
	if err := r.conn(ctx).Where("step_run_id = ?", stepRunID).Take(&e).Error; err != nil {
		return nil, notFound(err, repository.ErrCheckpointNotFound, "find checkpoint of step run "+stepRunID)
	}
	cp := e.CheckpointData
	return &cp, nil
}

// Close is a no-op; the connection is owned by its provider.
func (r *JobRepository) Close() error {
	return nil
}

func notFound(err, sentinel error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return exception.NewBatchError(module, "failed to "+op, err)
}
