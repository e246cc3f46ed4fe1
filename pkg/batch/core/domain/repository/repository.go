// Package repository declares the persistence contract for job metadata.
// Implementations live under infrastructure/repository.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

var (
	// ErrJobInstanceNotFound is returned when no instance matches the lookup.
	ErrJobInstanceNotFound = errors.New("job instance not found")
	// ErrJobRunNotFound is returned when no job run matches the lookup.
	ErrJobRunNotFound = errors.New("job run not found")
	// ErrStepRunNotFound is returned when no step run matches the lookup.
	ErrStepRunNotFound = errors.New("step run not found")
	// ErrCheckpointNotFound is returned when a step run has never committed a chunk.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// JobInstance persists logical job identities.
type JobInstance interface {
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error
	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)
	// FindJobInstance looks an instance up by job name and parameter hash.
	FindJobInstance(ctx context.Context, jobName, paramsHash string) (*model.JobInstance, error)
	// FindLatestJobInstance returns the most recently created instance of the job.
	FindLatestJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error)
}

// JobRun persists job runs. Finders that return a single run also load its StepRuns.
type JobRun interface {
	SaveJobRun(ctx context.Context, run *model.JobRun) error
	// UpdateJobRun is optimistic-locked on Version and bumps it on success.
	UpdateJobRun(ctx context.Context, run *model.JobRun) error
	FindJobRunByID(ctx context.Context, id string) (*model.JobRun, error)
	// FindLatestJobRun returns the most recently created run of the instance.
	FindLatestJobRun(ctx context.Context, instanceID string) (*model.JobRun, error)
	FindJobRunsByInstance(ctx context.Context, instanceID string) ([]*model.JobRun, error)
}

// StepRun persists step runs.
type StepRun interface {
	SaveStepRun(ctx context.Context, step *model.StepRun) error
	// UpdateStepRun is optimistic-locked on Version and bumps it on success.
	UpdateStepRun(ctx context.Context, step *model.StepRun) error
	FindStepRunsByJobRun(ctx context.Context, jobRunID string) ([]*model.StepRun, error)
}

// Checkpoint persists load-step restart data, one row per step run.
type Checkpoint interface {
	// SaveCheckpoint inserts or replaces the checkpoint of a step run.
	SaveCheckpoint(ctx context.Context, stepRunID string, cp model.Checkpoint) error
	FindCheckpoint(ctx context.Context, stepRunID string) (*model.Checkpoint, error)
}

// JobRepository is the full metadata store used by the job controller and the steps.
type JobRepository interface {
	JobInstance
	JobRun
	StepRun
	Checkpoint
	Close() error
}
