// Package tasklet implements the step that runs a single Tasklet once.
package tasklet

import (
	"context"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/engine/step"
)

// TaskletStep runs its tasklet once. Changes the tasklet makes to the job
// context are persisted by the job runner after the step ends.
type TaskletStep struct {
	name      string
	tasklet   port.Tasklet
	lifecycle step.Lifecycle
}

var (
	_ port.Step             = (*TaskletStep)(nil)
	_ port.RestartValidator = (*TaskletStep)(nil)
)

// NewTaskletStep creates a TaskletStep.
func NewTaskletStep(name string, tasklet port.Tasklet, lifecycle step.Lifecycle) *TaskletStep {
	return &TaskletStep{name: name, tasklet: tasklet, lifecycle: lifecycle}
}

func (s *TaskletStep) Name() string { return s.name }

// CanSkipOnRestart delegates to the tasklet when it implements port.RestartValidator.
func (s *TaskletStep) CanSkipOnRestart(run *model.JobRun) bool {
	if v, ok := s.tasklet.(port.RestartValidator); ok {
		return v.CanSkipOnRestart(run)
	}
	return true
}

func (s *TaskletStep) Execute(ctx context.Context, jobRun *model.JobRun, stepRun *model.StepRun) error {
	spanCtx, end, err := s.lifecycle.Begin(ctx, jobRun.JobName, stepRun)
	if err != nil {
		return err
	}
	defer end()

	exit, err := s.tasklet.Execute(spanCtx, jobRun, stepRun)
	return s.lifecycle.End(spanCtx, jobRun.JobName, stepRun, step.Outcome{Err: err, Exit: exit})
}
