package metrics

import (
	"context"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

// Tracer opens spans around runs and steps.
type Tracer interface {
	// StartJobSpan returns a context carrying the span and the function ending it.
	StartJobSpan(ctx context.Context, run *model.JobRun) (context.Context, func())
	StartStepSpan(ctx context.Context, step *model.StepRun) (context.Context, func())
	RecordError(ctx context.Context, module string, err error)
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
