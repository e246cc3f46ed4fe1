// Package step holds the bookkeeping shared by every step implementation.
package step

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

// Lifecycle moves a StepRun through start and finish, persisting each change
// and notifying listeners, metrics and tracing.
type Lifecycle struct {
	Repository repository.JobRepository
	Listeners  []port.StepRunListener
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
}

// NewLifecycle fills nil observability hooks with no-op implementations.
func NewLifecycle(repo repository.JobRepository, listeners []port.StepRunListener, recorder metrics.MetricRecorder, tracer metrics.Tracer) Lifecycle {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return Lifecycle{Repository: repo, Listeners: listeners, Recorder: recorder, Tracer: tracer}
}

// Begin marks stepRun STARTED. The returned context carries the step span,
// which the returned function ends.
func (l Lifecycle) Begin(ctx context.Context, jobName string, stepRun *model.StepRun) (context.Context, func(), error) {
	if err := stepRun.MarkStarted(); err != nil {
		return ctx, func() {}, err
	}
	if err := l.Repository.UpdateStepRun(ctx, stepRun); err != nil {
		return ctx, func() {}, exception.NewBatchError(stepRun.Name, "failed to persist STARTED step run", err)
	}
	spanCtx, end := l.Tracer.StartStepSpan(ctx, stepRun)
	start := time.Now()
	l.Recorder.RecordStepStart(spanCtx, jobName, stepRun)
	for _, listener := range l.Listeners {
		listener.BeforeStep(spanCtx, stepRun)
	}
	logger.Infof("Step '%s' started (step run %s).", stepRun.Name, stepRun.ID)
	return spanCtx, func() {
		l.Recorder.RecordDuration(spanCtx, "step", time.Since(start), map[string]string{"job": jobName, "step": stepRun.Name})
		end()
	}, nil
}

// Outcome is how a step body ended.
type Outcome struct {
	Err     error
	Exit    model.ExitStatus
	Stopped bool
}

// End moves stepRun to its terminal status and persists it. It returns the
// body error, or the persistence error when the body succeeded.
func (l Lifecycle) End(ctx context.Context, jobName string, stepRun *model.StepRun, out Outcome) error {
	var transitionErr error
	switch {
	case out.Err != nil:
		l.Tracer.RecordError(ctx, stepRun.Name, out.Err)
		transitionErr = stepRun.MarkFailed(out.Err)
	case out.Stopped:
		transitionErr = stepRun.MarkStopped()
	default:
		exit := out.Exit
		if exit == "" {
			exit = model.ExitStatusCompleted
		}
		transitionErr = stepRun.MarkCompleted(exit)
	}
	if transitionErr != nil {
		logger.Errorf("Step '%s': %v", stepRun.Name, transitionErr)
	}

	for _, listener := range l.Listeners {
		listener.AfterStep(ctx, stepRun)
	}
	l.Recorder.RecordStepEnd(ctx, jobName, stepRun)

	updateErr := l.Repository.UpdateStepRun(ctx, stepRun)
	if updateErr != nil {
		logger.Errorf("Step '%s': failed to persist final step run state: %v", stepRun.Name, updateErr)
	}
	logger.Infof("Step '%s' finished with status %s (exit %s).", stepRun.Name, stepRun.Status, stepRun.ExitStatus)

	switch {
	case out.Err != nil:
		return out.Err
	case transitionErr != nil:
		return transitionErr
	case updateErr != nil:
		return fmt.Errorf("step %s: %w", stepRun.Name, updateErr)
	}
	return nil
}
