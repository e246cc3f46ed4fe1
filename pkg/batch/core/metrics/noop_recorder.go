package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards every measurement.
type NoOpMetricRecorder struct{}

func NewNoOpMetricRecorder() MetricRecorder { return NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobRun) {}
func (NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobRun) {}
func (NoOpMetricRecorder) RecordStepStart(context.Context, string, *model.StepRun) {}
func (NoOpMetricRecorder) RecordStepEnd(context.Context, string, *model.StepRun) {}
func (NoOpMetricRecorder) RecordItemRead(context.Context, string, int) {}
func (NoOpMetricRecorder) RecordItemWrite(context.Context, string, int) {}
func (NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int) {}
func (NoOpMetricRecorder) RecordChunkRollback(context.Context, string) {}
func (NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

// NoOpTracer opens no spans.
type NoOpTracer struct{}

func NewNoOpTracer() Tracer { return NoOpTracer{} }

func (NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobRun) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepRun) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) RecordError(context.Context, string, error) {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var (
	_ MetricRecorder = NoOpMetricRecorder{}
	_ Tracer         = NoOpTracer{}
)
