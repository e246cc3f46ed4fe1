package usecase_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	"github.com/tigerroll/salesync/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/job/runner"
	"github.com/tigerroll/salesync/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/salesync/pkg/batch/engine/step"
	"github.com/tigerroll/salesync/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/salesync/pkg/batch/infrastructure/repository/inmemory"
	batchtest "github.com/tigerroll/salesync/pkg/batch/test"
)

const jobName = "syncSalesJob"

// scriptedTasklet fails while failures remain and can block until released.
type scriptedTasklet struct {
	calls    atomic.Int32
	failures atomic.Int32
	started  chan struct{}
	release  chan struct{}
	skip     atomic.Bool
}

func newScriptedTasklet() *scriptedTasklet {
	t := &scriptedTasklet{}
	t.skip.Store(true)
	return t
}

func (s *scriptedTasklet) Execute(_ context.Context, jobRun *model.JobRun, _ *model.StepRun) (model.ExitStatus, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return "", errors.New("scripted failure")
	}
	jobRun.Context.SetInputFilePath("/tmp/in.csv")
	return "", nil
}

func (s *scriptedTasklet) CanSkipOnRestart(*model.JobRun) bool { return s.skip.Load() }

type controllerFixture struct {
	repo       *inmemory.JobRepository
	controller *usecase.JobController
	fetch      *scriptedTasklet
	load       *scriptedTasklet
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	repo := inmemory.NewJobRepository()
	f := &controllerFixture{repo: repo, fetch: newScriptedTasklet(), load: newScriptedTasklet()}
	lc := step.NewLifecycle(repo, nil, nil, nil)
	job := runner.NewFlowJob(jobName, []port.Step{
		tasklet.NewTaskletStep("downloadFileStep", f.fetch, lc),
		tasklet.NewTaskletStep("loadStep", f.load, lc),
	}, repo, nil, nil, nil)
	f.controller = usecase.NewJobController(repo, incrementer.NewRunIDIncrementer(""), job)
	return f
}

func params(runID int) model.JobParameters {
	return batchtest.NewTestJobParameters(map[string]interface{}{"run.id": runID, "bucket": "sales"})
}

func TestJobController_SubmitCompletesOnce(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	run, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Len(t, run.StepRuns, 2)

	_, err = f.controller.Submit(ctx, jobName, params(1))
	assert.ErrorIs(t, err, usecase.ErrJobInstanceAlreadyComplete)

	_, err = f.controller.Submit(ctx, "unknownJob", params(1))
	assert.ErrorIs(t, err, usecase.ErrJobNotRegistered)
}

func TestJobController_RestartSkipsCompletedSteps(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	f.load.failures.Store(1)

	first, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, first.Status)
	assert.Equal(t, "loadStep", first.Summary().FailedStep)

	second, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, second.Status)
	assert.Equal(t, 1, second.RestartCount)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int32(1), f.fetch.calls.Load())
	assert.Equal(t, int32(2), f.load.calls.Load())
	path, ok := second.Context.InputFilePath()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/in.csv", path)

	runs, err := f.controller.Runs(ctx, jobName, params(1))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.StatusFailed, runs[0].Status)
	assert.Equal(t, model.StatusCompleted, runs[1].Status)
}

func TestJobController_RestartRerunsStepWhoseOutputIsGone(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	f.load.failures.Store(1)

	_, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)

	f.fetch.skip.Store(false)
	second, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, second.Status)
	assert.Equal(t, int32(2), f.fetch.calls.Load())
}

func TestJobController_AbandonStartsFresh(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	f.fetch.failures.Store(1)

	failed, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, failed.Status)

	require.NoError(t, f.controller.Abandon(ctx, failed.ID))
	status, err := f.controller.Status(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAbandoned, status.Status)

	fresh, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, fresh.Status)
	assert.Equal(t, 0, fresh.RestartCount)
}

func TestJobController_StopRunningJob(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	f.fetch.started = make(chan struct{}, 1)
	f.fetch.release = make(chan struct{})

	run, err := f.controller.Start(ctx, jobName, params(1))
	require.NoError(t, err)
	<-f.fetch.started

	_, err = f.controller.Start(ctx, jobName, params(1))
	assert.ErrorIs(t, err, usecase.ErrJobRunAlreadyRunning)
	assert.ErrorIs(t, f.controller.Abandon(ctx, run.ID), usecase.ErrJobRunAlreadyRunning)

	require.NoError(t, f.controller.Stop(ctx, run.ID))
	status, err := f.controller.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopping, status.Status)

	close(f.fetch.release)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := f.controller.Wait(waitCtx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, final.Status)
	assert.Equal(t, int32(0), f.load.calls.Load())

	assert.ErrorIs(t, f.controller.Stop(ctx, run.ID), usecase.ErrJobRunNotRunning)

	// A stopped run is restartable.
	f.fetch.started = nil
	resumed, err := f.controller.Submit(ctx, jobName, params(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, resumed.Status)
	assert.Equal(t, int32(1), f.load.calls.Load())
}

func TestJobController_StopOrphanedRun(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	inst, err := model.NewJobInstance(jobName, params(7))
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveJobInstance(ctx, inst))
	orphan := model.NewJobRun(inst)
	require.NoError(t, orphan.MarkStarted())
	require.NoError(t, f.repo.SaveJobRun(ctx, orphan))

	_, err = f.controller.Submit(ctx, jobName, params(7))
	assert.ErrorIs(t, err, usecase.ErrJobRunAlreadyRunning)

	// Recently updated: the run may still execute elsewhere, so only a stop request is recorded.
	require.NoError(t, f.controller.Stop(ctx, orphan.ID))
	status, err := f.controller.Status(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopping, status.Status)
	_, err = f.controller.Submit(ctx, jobName, params(7))
	assert.ErrorIs(t, err, usecase.ErrJobRunAlreadyRunning)

	f.controller.SetStopPolicy(0, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.controller.Stop(ctx, orphan.ID))
	status, err = f.controller.Status(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, status.Status)

	run, err := f.controller.Submit(ctx, jobName, params(7))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.RestartCount)
}

func TestJobController_StopFromAnotherController(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	f.fetch.started = make(chan struct{}, 1)
	f.fetch.release = make(chan struct{})
	f.controller.SetStopPolicy(5*time.Millisecond, 0)

	// A second process shares the repository but executes nothing of this run.
	lc := step.NewLifecycle(f.repo, nil, nil, nil)
	remoteJob := runner.NewFlowJob(jobName, []port.Step{
		tasklet.NewTaskletStep("downloadFileStep", newScriptedTasklet(), lc),
		tasklet.NewTaskletStep("loadStep", newScriptedTasklet(), lc),
	}, f.repo, nil, nil, nil)
	remote := usecase.NewJobController(f.repo, nil, remoteJob)

	live, err := f.controller.Start(ctx, jobName, params(4))
	require.NoError(t, err)
	<-f.fetch.started

	require.NoError(t, remote.Stop(ctx, live.ID))
	status, err := remote.Status(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopping, status.Status)

	_, err = remote.Start(ctx, jobName, params(4))
	assert.ErrorIs(t, err, usecase.ErrJobRunAlreadyRunning, "no restart while the original run executes")

	close(f.fetch.release)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := f.controller.Wait(waitCtx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, final.Status)
	assert.Empty(t, final.Failures)
	assert.Equal(t, int32(0), f.load.calls.Load())

	f.fetch.started = nil
	resumed, err := remote.Submit(ctx, jobName, params(4))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, resumed.Status)
	assert.Equal(t, 1, resumed.RestartCount)
}

func TestJobController_NextParameters(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	caller := batchtest.NewTestJobParameters(map[string]interface{}{"bucket": "sales"})

	next, err := f.controller.NextParameters(ctx, jobName, caller)
	require.NoError(t, err)
	id, ok := next.GetInt64("run.id")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, err = f.controller.Submit(ctx, jobName, next)
	require.NoError(t, err)

	next, err = f.controller.NextParameters(ctx, jobName, caller)
	require.NoError(t, err)
	id, _ = next.GetInt64("run.id")
	assert.Equal(t, int64(2), id)
	bucket, _ := next.GetString("bucket")
	assert.Equal(t, "sales", bucket)
}

func TestJobController_ShutdownStopsActiveRuns(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	f.fetch.started = make(chan struct{}, 1)
	f.fetch.release = make(chan struct{})

	run, err := f.controller.Start(ctx, jobName, params(3))
	require.NoError(t, err)
	<-f.fetch.started

	// The step is still blocked, so the first Shutdown only raises the stop.
	shortCtx, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, f.controller.Shutdown(shortCtx), context.DeadlineExceeded)

	close(f.fetch.release)
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.controller.Shutdown(shutdownCtx))

	status, err := f.controller.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, status.Status)
	require.NoError(t, f.controller.Close())
}
