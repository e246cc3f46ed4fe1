// Package runner executes a job's steps in sequence.
package runner

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/core/metrics"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// FlowJob runs its steps strictly one after another. A StepRun already
// COMPLETED (carried over by a restart) is skipped. A stop request is
// honoured before the next step starts.
type FlowJob struct {
	name          string
	steps         []port.Step
	jobRepository repository.JobRepository
	jobListeners  []port.JobRunListener
	recorder      metrics.MetricRecorder
	tracer        metrics.Tracer
}

var _ port.Job = (*FlowJob)(nil)

// NewFlowJob creates a FlowJob. Nil recorder or tracer disable that concern.
func NewFlowJob(
	name string,
	steps []port.Step,
	jobRepository repository.JobRepository,
	jobListeners []port.JobRunListener,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *FlowJob {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &FlowJob{
		name:          name,
		steps:         steps,
		jobRepository: jobRepository,
		jobListeners:  jobListeners,
		recorder:      recorder,
		tracer:        tracer,
	}
}

func (j *FlowJob) Name() string { return j.name }

func (j *FlowJob) Steps() []port.Step { return j.steps }

// Run executes jobRun and leaves it COMPLETED, FAILED or STOPPED. The returned
// error is the failure of the first failing step.
func (j *FlowJob) Run(ctx context.Context, jobRun *model.JobRun) (runErr error) {
	logger.Infof("Starting job '%s' (job run %s, restart %d).", j.name, jobRun.ID, jobRun.RestartCount)

	ctx, endSpan := j.tracer.StartJobSpan(ctx, jobRun)
	defer endSpan()
	start := time.Now()

	if err := jobRun.MarkStarted(); err != nil {
		return err
	}
	if err := j.updateJobRun(ctx, jobRun); err != nil {
		return exception.NewBatchError(j.name, "failed to persist STARTED job run", err)
	}
	j.recorder.RecordJobStart(ctx, jobRun)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobRun)
	}

	defer func() {
		if err := j.updateJobRun(ctx, jobRun); err != nil {
			logger.Errorf("Job '%s': failed to persist final job run state: %v", j.name, err)
			if runErr == nil {
				runErr = err
			}
		}
		for _, l := range j.jobListeners {
			l.AfterJob(ctx, jobRun)
		}
		j.recorder.RecordJobEnd(ctx, jobRun)
		j.recorder.RecordDuration(ctx, "job", time.Since(start), map[string]string{"job": j.name})
		logger.Infof("Job '%s' (job run %s) finished. Status: %s, exit status: %s.", j.name, jobRun.ID, jobRun.Status, jobRun.ExitStatus)
	}()

	runErr = j.runSteps(ctx, jobRun)
	return runErr
}

func (j *FlowJob) runSteps(ctx context.Context, jobRun *model.JobRun) error {
	for _, step := range j.steps {
		if ctx.Err() != nil || port.StopRequested(ctx) {
			logger.Infof("Job '%s': stop requested before step '%s'.", j.name, step.Name())
			return j.finish(jobRun, jobRun.MarkStopped())
		}

		stepRun, err := j.stepRunFor(ctx, jobRun, step.Name())
		if err != nil {
			return j.fail(ctx, jobRun, err)
		}
		if stepRun.Status == model.StatusCompleted {
			logger.Infof("Job '%s': step '%s' already completed in a previous run, skipping.", j.name, step.Name())
			continue
		}

		stepErr := step.Execute(ctx, jobRun, stepRun)

		// Tasklets may have changed the job context.
		if err := j.updateJobRun(ctx, jobRun); err != nil {
			logger.Errorf("Job '%s': failed to persist job context after step '%s': %v", j.name, step.Name(), err)
			if stepErr == nil {
				stepErr = err
			}
		}

		if stepErr != nil {
			return j.fail(ctx, jobRun, stepErr)
		}
		if stepRun.Status == model.StatusStopped {
			return j.finish(jobRun, jobRun.MarkStopped())
		}
	}
	return j.finish(jobRun, jobRun.MarkCompleted())
}

// updateJobRun persists jobRun. A version conflict caused by a stop request
// that another process persisted is absorbed: the run takes the stored
// version, moves to STOPPING while still running and the update is retried.
func (j *FlowJob) updateJobRun(ctx context.Context, jobRun *model.JobRun) error {
	err := j.jobRepository.UpdateJobRun(ctx, jobRun)
	if err == nil || !exception.IsOptimisticLockingFailure(err) {
		return err
	}
	stored, findErr := j.jobRepository.FindJobRunByID(ctx, jobRun.ID)
	if findErr != nil || stored.Status != model.StatusStopping {
		return err
	}
	jobRun.Version = stored.Version
	if jobRun.Status == model.StatusStarting || jobRun.Status == model.StatusStarted {
		if markErr := jobRun.MarkStopping(); markErr != nil {
			return markErr
		}
	}
	port.RequestStop(ctx)
	logger.Infof("Job '%s': job run %s was asked to stop by another process.", j.name, jobRun.ID)
	return j.jobRepository.UpdateJobRun(ctx, jobRun)
}

func (j *FlowJob) stepRunFor(ctx context.Context, jobRun *model.JobRun, name string) (*model.StepRun, error) {
	if s := jobRun.StepRun(name); s != nil {
		return s, nil
	}
	s := model.NewStepRun(jobRun.ID, name)
	if err := j.jobRepository.SaveStepRun(ctx, s); err != nil {
		return nil, exception.NewBatchError(j.name, fmt.Sprintf("failed to create step run for '%s'", name), err)
	}
	jobRun.StepRuns = append(jobRun.StepRuns, s)
	return s, nil
}

func (j *FlowJob) fail(ctx context.Context, jobRun *model.JobRun, err error) error {
	j.tracer.RecordError(ctx, j.name, err)
	if markErr := jobRun.MarkFailed(err); markErr != nil {
		logger.Errorf("Job '%s': %v", j.name, markErr)
	}
	return err
}

func (j *FlowJob) finish(jobRun *model.JobRun, transitionErr error) error {
	if transitionErr != nil {
		logger.Errorf("Job '%s': %v", j.name, transitionErr)
	}
	return transitionErr
}
