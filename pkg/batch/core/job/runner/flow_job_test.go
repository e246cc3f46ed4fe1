package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/job/runner"
	"github.com/tigerroll/salesync/pkg/batch/engine/step"
	"github.com/tigerroll/salesync/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/salesync/pkg/batch/infrastructure/repository/inmemory"
	batchtest "github.com/tigerroll/salesync/pkg/batch/test"
)

type countingTasklet struct {
	calls int
	err   error
	after func()
}

func (c *countingTasklet) Execute(context.Context, *model.JobRun, *model.StepRun) (model.ExitStatus, error) {
	c.calls++
	if c.after != nil {
		c.after()
	}
	return "", c.err
}

type jobListener struct {
	before, after []model.Status
}

func (l *jobListener) BeforeJob(_ context.Context, r *model.JobRun) { l.before = append(l.before, r.Status) }
func (l *jobListener) AfterJob(_ context.Context, r *model.JobRun)  { l.after = append(l.after, r.Status) }

type jobFixture struct {
	repo   *inmemory.JobRepository
	run    *model.JobRun
	first  *countingTasklet
	second *countingTasklet
	job    *runner.FlowJob
	events *jobListener
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	repo := inmemory.NewJobRepository()
	run := batchtest.NewTestJobRun(t, "syncSalesJob", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 1}))
	require.NoError(t, repo.SaveJobRun(context.Background(), run))

	f := &jobFixture{repo: repo, run: run, first: &countingTasklet{}, second: &countingTasklet{}, events: &jobListener{}}
	lc := step.NewLifecycle(repo, nil, nil, nil)
	f.job = runner.NewFlowJob("syncSalesJob", []port.Step{
		tasklet.NewTaskletStep("downloadFileStep", f.first, lc),
		tasklet.NewTaskletStep("loadStep", f.second, lc),
	}, repo, []port.JobRunListener{f.events}, nil, nil)
	return f
}

func TestFlowJob_RunsStepsInOrder(t *testing.T) {
	f := newJobFixture(t)

	require.NoError(t, f.job.Run(context.Background(), f.run))

	assert.Equal(t, model.StatusCompleted, f.run.Status)
	assert.Equal(t, model.ExitStatusCompleted, f.run.ExitStatus)
	assert.Equal(t, 1, f.first.calls)
	assert.Equal(t, 1, f.second.calls)
	require.Len(t, f.run.StepRuns, 2)
	assert.Equal(t, "downloadFileStep", f.run.StepRuns[0].Name)
	assert.Equal(t, "loadStep", f.run.StepRuns[1].Name)
	assert.Equal(t, []model.Status{model.StatusStarted}, f.events.before)
	assert.Equal(t, []model.Status{model.StatusCompleted}, f.events.after)

	stored, err := f.repo.FindJobRunByID(context.Background(), f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Len(t, stored.StepRuns, 2)
}

func TestFlowJob_StepFailureFailsJob(t *testing.T) {
	f := newJobFixture(t)
	f.first.err = errors.New("bucket unreachable")

	err := f.job.Run(context.Background(), f.run)
	require.Error(t, err)

	assert.Equal(t, model.StatusFailed, f.run.Status)
	assert.Equal(t, 0, f.second.calls)
	require.Len(t, f.run.StepRuns, 1)
	assert.Equal(t, model.StatusFailed, f.run.StepRuns[0].Status)
	assert.Equal(t, "downloadFileStep", f.run.Summary().FailedStep)
	assert.Contains(t, f.run.Failures[0], "bucket unreachable")
}

func TestFlowJob_SkipsCompletedSteps(t *testing.T) {
	f := newJobFixture(t)
	done := model.NewStepRun(f.run.ID, "downloadFileStep")
	require.NoError(t, done.MarkStarted())
	require.NoError(t, done.MarkCompleted(model.ExitStatusCompleted))
	require.NoError(t, f.repo.SaveStepRun(context.Background(), done))
	f.run.StepRuns = []*model.StepRun{done}

	require.NoError(t, f.job.Run(context.Background(), f.run))

	assert.Equal(t, 0, f.first.calls)
	assert.Equal(t, 1, f.second.calls)
	assert.Equal(t, model.StatusCompleted, f.run.Status)
}

func TestFlowJob_StopBetweenSteps(t *testing.T) {
	f := newJobFixture(t)
	signal := &port.StopSignal{}
	f.first.after = signal.Raise

	require.NoError(t, f.job.Run(port.WithStopSignal(context.Background(), signal), f.run))

	assert.Equal(t, model.StatusStopped, f.run.Status)
	assert.Equal(t, model.ExitStatusStopped, f.run.ExitStatus)
	assert.Equal(t, 1, f.first.calls)
	assert.Equal(t, 0, f.second.calls)
}
