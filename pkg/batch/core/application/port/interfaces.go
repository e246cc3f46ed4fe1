// Package port declares the contracts between the batch engine and the
// components plugged into it: readers, processors, writers, tasklets,
// steps, jobs and listeners.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the input is exhausted.
var ErrNoMoreItems = errors.New("no more items")

// ItemReader is a forward-only cursor over the input of a chunk step.
type ItemReader[O any] interface {
	// Open positions the reader. jobCtx supplies the input location and cp
	// the restart position; a zero Checkpoint starts at the beginning.
	Open(ctx context.Context, jobCtx model.JobContext, cp model.Checkpoint) error
	// Read returns the next item or ErrNoMoreItems.
	Read(ctx context.Context) (O, error)
	// Position is the resumable marker after the last item returned by Read.
	Position() int64
	Close(ctx context.Context) error
}

// ItemProcessor converts one read item into one written item.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists a chunk inside the chunk transaction.
type ItemWriter[O any] interface {
	Write(ctx context.Context, t tx.Tx, items []O) error
}

// Tasklet is a unit of work executed once by a tasklet step.
type Tasklet interface {
	Execute(ctx context.Context, jobRun *model.JobRun, stepRun *model.StepRun) (model.ExitStatus, error)
}

// Step is one stage of a job.
type Step interface {
	Name() string
	// Execute runs the step, driving stepRun through its state machine and
	// persisting it. A non-nil error means the step ended FAILED.
	Execute(ctx context.Context, jobRun *model.JobRun, stepRun *model.StepRun) error
}

// Job is an ordered sequence of steps.
type Job interface {
	Name() string
	Steps() []Step
	// Run executes the steps of jobRun in order and leaves it in a terminal status.
	Run(ctx context.Context, jobRun *model.JobRun) error
}

// JobRunListener observes the start and end of a job run.
type JobRunListener interface {
	BeforeJob(ctx context.Context, run *model.JobRun)
	AfterJob(ctx context.Context, run *model.JobRun)
}

// StepRunListener observes the start and end of a step run.
type StepRunListener interface {
	BeforeStep(ctx context.Context, step *model.StepRun)
	AfterStep(ctx context.Context, step *model.StepRun)
}

// ChunkListener observes chunk boundaries of a chunk step.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, step *model.StepRun)
	// AfterChunk is called after a successful commit.
	AfterChunk(ctx context.Context, step *model.StepRun)
	// AfterChunkError is called after the chunk was rolled back.
	AfterChunkError(ctx context.Context, step *model.StepRun, err error)
}

// JobParametersIncrementer derives the parameters of a fresh job instance.
type JobParametersIncrementer interface {
	GetNext(params model.JobParameters) model.JobParameters
}

// RestartValidator is implemented by steps (or tasklets) whose COMPLETED
// outcome depends on state outside the repository. A restarted run re-executes
// the step when CanSkipOnRestart reports false. run is the new run, carrying
// the job context of the run it replaces.
type RestartValidator interface {
	CanSkipOnRestart(run *model.JobRun) bool
}
