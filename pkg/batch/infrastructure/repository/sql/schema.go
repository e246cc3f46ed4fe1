package sql

import (
	"time"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

// JobInstanceEntity is the row of batch_job_instance.
type JobInstanceEntity struct {
	ID         string              `gorm:"column:id;primaryKey"`
	JobName    string              `gorm:"column:job_name"`
	Parameters model.JobParameters `gorm:"column:parameters"`
	ParamsHash string              `gorm:"column:params_hash"`
	CreateTime time.Time           `gorm:"column:create_time"`
	Version    int                 `gorm:"column:version"`
}

func (JobInstanceEntity) TableName() string { return "batch_job_instance" }

// JobRunEntity is the row of batch_job_run.
type JobRunEntity struct {
	ID           string              `gorm:"column:id;primaryKey"`
	InstanceID   string              `gorm:"column:job_instance_id"`
	JobName      string              `gorm:"column:job_name"`
	Parameters   model.JobParameters `gorm:"column:parameters"`
	Status       string              `gorm:"column:status"`
	ExitStatus   string              `gorm:"column:exit_status"`
	Context      model.JobContext    `gorm:"column:job_context"`
	Failures     model.FailureList   `gorm:"column:failures"`
	RestartCount int                 `gorm:"column:restart_count"`
	CreateTime   time.Time           `gorm:"column:create_time"`
	StartTime    *time.Time          `gorm:"column:start_time"`
	EndTime      *time.Time          `gorm:"column:end_time"`
	LastUpdated  time.Time           `gorm:"column:last_updated"`
	Version      int                 `gorm:"column:version"`
}

func (JobRunEntity) TableName() string { return "batch_job_run" }

// StepRunEntity is the row of batch_step_run.
type StepRunEntity struct {
	ID          string            `gorm:"column:id;primaryKey"`
	JobRunID    string            `gorm:"column:job_run_id"`
	StepName    string            `gorm:"column:step_name"`
	Status      string            `gorm:"column:status"`
	ExitStatus  string            `gorm:"column:exit_status"`
	ReadCount   int64             `gorm:"column:read_count"`
	WriteCount  int64             `gorm:"column:write_count"`
	CommitCount int64             `gorm:"column:commit_count"`
	Failures    model.FailureList `gorm:"column:failures"`
	FailureKind string            `gorm:"column:failure_kind"`
	CreateTime  time.Time         `gorm:"column:create_time"`
	StartTime   *time.Time        `gorm:"column:start_time"`
	EndTime     *time.Time        `gorm:"column:end_time"`
	LastUpdated time.Time         `gorm:"column:last_updated"`
	Version     int               `gorm:"column:version"`
}

func (StepRunEntity) TableName() string { return "batch_step_run" }

// CheckpointEntity is the row of batch_checkpoint, one per step run.
type CheckpointEntity struct {
	StepRunID      string           `gorm:"column:step_run_id;primaryKey"`
	CheckpointData model.Checkpoint `gorm:"column:checkpoint_data"`
	LastUpdated    time.Time        `gorm:"column:last_updated"`
}

func (CheckpointEntity) TableName() string { return "batch_checkpoint" }
