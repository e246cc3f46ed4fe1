// Package logging provides listeners that write job, step and chunk boundaries to the application log.
package logging

import (
	"context"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// --- Job Run Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, run *model.JobRun) {
	logger.Infof("JobRunListener: BeforeJob - JobName: %s, ID: %s, Params: %s, Restart: %d", run.JobName, run.ID, run.Parameters.String(), run.RestartCount)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, run *model.JobRun) {
	summary := run.Summary()
	if run.Status == model.StatusFailed {
		logger.Errorf("JobRunListener: AfterJob - JobName: %s, Status: %s, FailedStep: %s, ErrorKind: %s, CommittedRows: %d",
			run.JobName, run.Status, summary.FailedStep, summary.ErrorKind, summary.CommittedRows)
		return
	}
	logger.Infof("JobRunListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s, CommittedRows: %d",
		run.JobName, run.Status, run.ExitStatus, summary.CommittedRows)
}

var _ port.JobRunListener = (*LoggingJobListener)(nil)

// --- Step Run Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, step *model.StepRun) {
	logger.Debugf("StepRunListener: BeforeStep - StepName: %s, ID: %s", step.Name, step.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, step *model.StepRun) {
	logger.Infof("StepRunListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s, Read: %d, Write: %d, Commits: %d",
		step.Name, step.Status, step.ExitStatus, step.ReadCount, step.WriteCount, step.CommitCount)
}

var _ port.StepRunListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, step *model.StepRun) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s", step.Name)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, step *model.StepRun) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d, Commits: %d", step.Name, step.ReadCount, step.WriteCount, step.CommitCount)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, step *model.StepRun, err error) {
	logger.Warnf("ChunkListener: AfterChunkError - StepName: %s, rolled back after %d commits: %v", step.Name, step.CommitCount, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)
