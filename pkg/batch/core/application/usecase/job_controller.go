// Package usecase provides the JobController, the entry point for submitting,
// inspecting and stopping job runs.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const module = "JobController"

const (
	// DefaultStopPollInterval is how often an active run reads its persisted
	// status for a stop requested by another process.
	DefaultStopPollInterval = 2 * time.Second
	// DefaultStaleRunTimeout is how long a run may go without repository
	// activity before Stop treats its executor as gone.
	DefaultStaleRunTimeout = 10 * time.Minute
)

var (
	// ErrJobRunAlreadyRunning is returned when a run of the same job instance has not finished.
	ErrJobRunAlreadyRunning = errors.New("a job run of this job instance is still running")
	// ErrJobInstanceAlreadyComplete is returned when the job instance already has a COMPLETED run.
	ErrJobInstanceAlreadyComplete = errors.New("job instance already completed; use different parameters for a new run")
	// ErrJobNotRegistered is returned for an unknown job name.
	ErrJobNotRegistered = errors.New("job not registered")
	// ErrJobRunNotRunning is returned when stopping a run that already finished.
	ErrJobRunNotRunning = errors.New("job run is not running")
)

// JobController launches jobs and applies the restart rule: resubmitting the
// parameters of a FAILED or STOPPED run creates a new run that skips the
// steps already COMPLETED and resumes the others from their checkpoints.
type JobController struct {
	repo        repository.JobRepository
	jobs        map[string]port.Job
	incrementer port.JobParametersIncrementer

	pollInterval time.Duration
	staleAfter   time.Duration

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	instanceID string
	stop       *port.StopSignal
	done       chan struct{}
}

// NewJobController registers jobs by name. incrementer may be nil, in which
// case NextParameters is unavailable.
func NewJobController(repo repository.JobRepository, incrementer port.JobParametersIncrementer, jobs ...port.Job) *JobController {
	registry := make(map[string]port.Job, len(jobs))
	for _, j := range jobs {
		registry[j.Name()] = j
	}
	return &JobController{
		repo:         repo,
		jobs:         registry,
		incrementer:  incrementer,
		pollInterval: DefaultStopPollInterval,
		staleAfter:   DefaultStaleRunTimeout,
		active:       make(map[string]*activeRun),
	}
}

// SetStopPolicy sets how often active runs poll for a persisted stop request
// and how long a run may stay idle before Stop marks it STOPPED. Values
// below or equal to zero keep the current setting.
func (c *JobController) SetStopPolicy(pollInterval, staleAfter time.Duration) {
	if pollInterval > 0 {
		c.pollInterval = pollInterval
	}
	if staleAfter > 0 {
		c.staleAfter = staleAfter
	}
}

// Submit runs the job to completion and returns the finished run. Step
// failures are reported through the run's status, not the error.
func (c *JobController) Submit(ctx context.Context, jobName string, params model.JobParameters) (*model.JobRun, error) {
	job, run, err := c.prepare(ctx, jobName, params)
	if err != nil {
		return nil, err
	}
	a := c.register(run)
	c.wg.Add(1)
	c.execute(ctx, job, run, a)
	return run.Clone(), nil
}

// Start launches the job in the background and returns a snapshot of the new
// run. The run outlives ctx; use Stop to end it early.
func (c *JobController) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobRun, error) {
	job, run, err := c.prepare(ctx, jobName, params)
	if err != nil {
		return nil, err
	}
	snapshot := run.Clone()
	a := c.register(run)
	c.wg.Add(1)
	go c.execute(context.WithoutCancel(ctx), job, run, a)
	return snapshot, nil
}

// Status returns the persisted run with its steps. A running job that was
// asked to stop is reported as STOPPING.
func (c *JobController) Status(ctx context.Context, jobRunID string) (*model.JobRun, error) {
	run, err := c.repo.FindJobRunByID(ctx, jobRunID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	a, ok := c.active[jobRunID]
	c.mu.Unlock()
	if ok && a.stop.Raised() && run.Status == model.StatusStarted {
		_ = run.MarkStopping()
	}
	return run, nil
}

// Runs lists the runs of the job instance identified by jobName and params, oldest first.
func (c *JobController) Runs(ctx context.Context, jobName string, params model.JobParameters) ([]*model.JobRun, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}
	instance, err := c.repo.FindJobInstance(ctx, jobName, hash)
	if err != nil {
		return nil, err
	}
	return c.repo.FindJobRunsByInstance(ctx, instance.ID)
}

// Wait blocks until the run finishes in this process or ctx is done, then returns its status.
func (c *JobController) Wait(ctx context.Context, jobRunID string) (*model.JobRun, error) {
	c.mu.Lock()
	a, ok := c.active[jobRunID]
	c.mu.Unlock()
	if ok {
		select {
		case <-a.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.Status(ctx, jobRunID)
}

// Stop asks a running job to stop. The current chunk finishes and commits;
// the step and the run end STOPPED. A run executing in another process is
// asked through its persisted status, which moves to STOPPING; that process
// halts it at its next chunk boundary. Only a run without repository
// activity for the stale run timeout is marked STOPPED directly, so a run
// left behind by a crashed process can be restarted.
func (c *JobController) Stop(ctx context.Context, jobRunID string) error {
	c.mu.Lock()
	a, ok := c.active[jobRunID]
	c.mu.Unlock()
	if ok {
		a.stop.Raise()
		logger.Infof("Stop requested for job run %s.", jobRunID)
		return nil
	}

	run, err := c.repo.FindJobRunByID(ctx, jobRunID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("%w: job run %s is %s", ErrJobRunNotRunning, jobRunID, run.Status)
	}
	if idle := time.Since(lastActivity(run)); idle >= c.staleAfter {
		if err := run.MarkStopped(); err != nil {
			return err
		}
		if err := c.repo.UpdateJobRun(ctx, run); err != nil {
			return exception.NewBatchError(module, "failed to persist stopped job run "+jobRunID, err)
		}
		logger.Warnf("Job run %s shows no activity for %s; its executor is gone, marked STOPPED.", jobRunID, idle.Round(time.Second))
		return nil
	}
	if run.Status == model.StatusStopping {
		logger.Infof("Stop of job run %s was already requested.", jobRunID)
		return nil
	}
	if err := run.MarkStopping(); err != nil {
		return err
	}
	if err := c.repo.UpdateJobRun(ctx, run); err != nil {
		return exception.NewBatchError(module, "failed to persist stop request for job run "+jobRunID, err)
	}
	logger.Infof("Stop requested for job run %s; the process executing it halts at its next chunk boundary.", jobRunID)
	return nil
}

// lastActivity is the latest repository write of run or one of its steps.
func lastActivity(run *model.JobRun) time.Time {
	last := run.LastUpdated
	for _, s := range run.StepRuns {
		if s.LastUpdated.After(last) {
			last = s.LastUpdated
		}
	}
	return last
}

// Abandon marks a FAILED or STOPPED run ABANDONED. Its job instance will not
// be resumed; the next submission starts from scratch.
func (c *JobController) Abandon(ctx context.Context, jobRunID string) error {
	c.mu.Lock()
	_, ok := c.active[jobRunID]
	c.mu.Unlock()
	if ok {
		return fmt.Errorf("%w: stop job run %s before abandoning it", ErrJobRunAlreadyRunning, jobRunID)
	}
	run, err := c.repo.FindJobRunByID(ctx, jobRunID)
	if err != nil {
		return err
	}
	if run.Status == model.StatusAbandoned {
		return nil
	}
	if err := run.MarkAbandoned(); err != nil {
		return err
	}
	if err := c.repo.UpdateJobRun(ctx, run); err != nil {
		return exception.NewBatchError(module, "failed to persist abandoned job run "+jobRunID, err)
	}
	logger.Infof("Job run %s abandoned.", jobRunID)
	return nil
}

// NextParameters returns params with the run id of the job's latest instance
// advanced, so the submission addresses a new job instance.
func (c *JobController) NextParameters(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, error) {
	if c.incrementer == nil {
		return params, exception.NewBatchErrorf(module, "job '%s' has no parameters incrementer", jobName)
	}
	base := model.NewJobParameters()
	latest, err := c.repo.FindLatestJobInstance(ctx, jobName)
	switch {
	case err == nil:
		base = latest.Parameters
	case !errors.Is(err, repository.ErrJobInstanceNotFound):
		return params, err
	}
	next := c.incrementer.GetNext(base)
	merged := params.Copy()
	for k, v := range next.Params {
		if _, set := params.Params[k]; !set {
			merged.Params[k] = v
		}
	}
	return merged, nil
}

// Shutdown stops every active run and waits for them to end or ctx to expire.
func (c *JobController) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, a := range c.active {
		a.stop.Raise()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the job repository.
func (c *JobController) Close() error {
	var result *multierror.Error
	if err := c.repo.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (c *JobController) register(run *model.JobRun) *activeRun {
	a := &activeRun{instanceID: run.InstanceID, stop: &port.StopSignal{}, done: make(chan struct{})}
	c.mu.Lock()
	c.active[run.ID] = a
	c.mu.Unlock()
	return a
}

func (c *JobController) execute(ctx context.Context, job port.Job, run *model.JobRun, a *activeRun) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.active, run.ID)
		c.mu.Unlock()
		close(a.done)
	}()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go c.watchStopRequest(watchCtx, run.ID, a.stop)

	if err := job.Run(port.WithStopSignal(ctx, a.stop), run); err != nil {
		s := run.Summary()
		logger.Errorf("Job run %s failed in step '%s' (%s) after %d committed rows: %v",
			run.ID, s.FailedStep, s.ErrorKind, s.CommittedRows, err)
	}
}

// watchStopRequest raises stop once the persisted run is STOPPING, which is
// how a stop requested by another process reaches this one.
func (c *JobController) watchStopRequest(ctx context.Context, jobRunID string, stop *port.StopSignal) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stored, err := c.repo.FindJobRunByID(ctx, jobRunID)
		if err != nil {
			logger.Debugf("Job run %s: failed to poll for a stop request: %v", jobRunID, err)
			continue
		}
		if stored.Status == model.StatusStopping {
			logger.Infof("Job run %s: stop requested by another process.", jobRunID)
			stop.Raise()
			return
		}
	}
}

// prepare resolves the job instance and creates the run to execute, applying the restart rule.
func (c *JobController) prepare(ctx context.Context, jobName string, params model.JobParameters) (port.Job, *model.JobRun, error) {
	job, ok := c.jobs[jobName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotRegistered, jobName)
	}
	hash, err := params.Hash()
	if err != nil {
		return nil, nil, err
	}

	// Serializes instance lookup against concurrent submissions in this process.
	c.mu.Lock()
	defer c.mu.Unlock()

	instance, err := c.repo.FindJobInstance(ctx, jobName, hash)
	if errors.Is(err, repository.ErrJobInstanceNotFound) {
		instance, err = model.NewJobInstance(jobName, params)
		if err != nil {
			return nil, nil, err
		}
		if err := c.repo.SaveJobInstance(ctx, instance); err != nil {
			return nil, nil, exception.NewBatchError(module, "failed to save job instance", err)
		}
		logger.Infof("Created job instance %s for '%s' with parameters %s.", instance.ID, jobName, params)
		run, err := c.newRun(ctx, instance)
		return job, run, err
	}
	if err != nil {
		return nil, nil, exception.NewBatchError(module, "failed to look up job instance", err)
	}

	for _, a := range c.active {
		if a.instanceID == instance.ID {
			return nil, nil, ErrJobRunAlreadyRunning
		}
	}

	latest, err := c.repo.FindLatestJobRun(ctx, instance.ID)
	if errors.Is(err, repository.ErrJobRunNotFound) {
		run, err := c.newRun(ctx, instance)
		return job, run, err
	}
	if err != nil {
		return nil, nil, exception.NewBatchError(module, "failed to look up latest job run", err)
	}

	switch latest.Status {
	case model.StatusCompleted:
		return nil, nil, ErrJobInstanceAlreadyComplete
	case model.StatusAbandoned:
		logger.Infof("Latest run %s of instance %s was abandoned; starting from scratch.", latest.ID, instance.ID)
		run, err := c.newRun(ctx, instance)
		return job, run, err
	case model.StatusFailed, model.StatusStopped:
		run, err := c.restartRun(ctx, job, instance, latest)
		return job, run, err
	default:
		return nil, nil, fmt.Errorf("%w: job run %s is %s", ErrJobRunAlreadyRunning, latest.ID, latest.Status)
	}
}

func (c *JobController) newRun(ctx context.Context, instance *model.JobInstance) (*model.JobRun, error) {
	run := model.NewJobRun(instance)
	if err := c.repo.SaveJobRun(ctx, run); err != nil {
		return nil, exception.NewBatchError(module, "failed to save job run", err)
	}
	return run, nil
}

func (c *JobController) restartRun(ctx context.Context, job port.Job, instance *model.JobInstance, prev *model.JobRun) (*model.JobRun, error) {
	run := model.NewJobRun(instance)
	run.Context = prev.Context
	run.RestartCount = prev.RestartCount + 1

	validators := make(map[string]port.RestartValidator)
	for _, s := range job.Steps() {
		if v, ok := s.(port.RestartValidator); ok {
			validators[s.Name()] = v
		}
	}
	for _, prevStep := range prev.StepRuns {
		step := prevStep.CopyForRestart(run.ID)
		if v, ok := validators[step.Name]; ok && step.Status == model.StatusCompleted && !v.CanSkipOnRestart(run) {
			logger.Infof("Step '%s' completed in run %s but its output is gone; it will run again.", step.Name, prev.ID)
			run.Context.ClearInputFilePath()
			step = model.NewStepRun(run.ID, step.Name)
		}
		run.StepRuns = append(run.StepRuns, step)
	}

	if err := c.repo.SaveJobRun(ctx, run); err != nil {
		return nil, exception.NewBatchError(module, "failed to save restarted job run", err)
	}
	for _, step := range run.StepRuns {
		if err := c.repo.SaveStepRun(ctx, step); err != nil {
			return nil, exception.NewBatchError(module, "failed to save copied step run "+step.Name, err)
		}
		if step.Checkpoint != nil {
			if err := c.repo.SaveCheckpoint(ctx, step.ID, *step.Checkpoint); err != nil {
				return nil, exception.NewBatchError(module, "failed to carry over checkpoint of "+step.Name, err)
			}
		}
	}
	logger.Infof("Restarting job instance %s: run %s replaces %s (%s), restart %d.",
		instance.ID, run.ID, prev.ID, prev.Status, run.RestartCount)
	return run, nil
}
