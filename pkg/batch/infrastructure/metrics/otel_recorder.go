package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/salesync/pkg/batch/core/metrics"
)

// OTelRecorder records batch metrics through an OpenTelemetry Meter.
type OTelRecorder struct {
	jobRuns       otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	stepRuns      otelmetric.Int64Counter
	stepDuration  otelmetric.Float64Histogram
	itemsRead     otelmetric.Int64Counter
	itemsWritten  otelmetric.Int64Counter
	chunkCommits  otelmetric.Int64Counter
	chunkRollback otelmetric.Int64Counter
	operation     otelmetric.Float64Histogram
}

// NewOTelRecorder creates the instruments on meter.
func NewOTelRecorder(meter otelmetric.Meter) (*OTelRecorder, error) {
	r := &OTelRecorder{}
	var err error
	if r.jobRuns, err = meter.Int64Counter("batch.job.runs", otelmetric.WithDescription("Job runs by status.")); err != nil {
		return nil, err
	}
	if r.jobDuration, err = meter.Float64Histogram("batch.job.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stepRuns, err = meter.Int64Counter("batch.step.runs", otelmetric.WithDescription("Step runs by status.")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = meter.Float64Histogram("batch.step.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.itemsRead, err = meter.Int64Counter("batch.step.items.read"); err != nil {
		return nil, err
	}
	if r.itemsWritten, err = meter.Int64Counter("batch.step.items.written"); err != nil {
		return nil, err
	}
	if r.chunkCommits, err = meter.Int64Counter("batch.step.chunk.commits"); err != nil {
		return nil, err
	}
	if r.chunkRollback, err = meter.Int64Counter("batch.step.chunk.rollbacks"); err != nil {
		return nil, err
	}
	if r.operation, err = meter.Float64Histogram("batch.operation.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelRecorder) RecordJobStart(ctx context.Context, run *model.JobRun) {
	r.jobRuns.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("job.name", run.JobName),
		attribute.String("status", run.Status.String()),
	))
}

func (r *OTelRecorder) RecordJobEnd(ctx context.Context, run *model.JobRun) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job.name", run.JobName),
		attribute.String("status", run.Status.String()),
	)
	r.jobRuns.Add(ctx, 1, attrs)
	if run.StartTime != nil && run.EndTime != nil {
		r.jobDuration.Record(ctx, run.EndTime.Sub(*run.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordStepStart(ctx context.Context, jobName string, step *model.StepRun) {
	r.stepRuns.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("job.name", jobName),
		attribute.String("step.name", step.Name),
		attribute.String("status", step.Status.String()),
	))
}

func (r *OTelRecorder) RecordStepEnd(ctx context.Context, jobName string, step *model.StepRun) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job.name", jobName),
		attribute.String("step.name", step.Name),
		attribute.String("status", step.Status.String()),
	)
	r.stepRuns.Add(ctx, 1, attrs)
	if step.StartTime != nil && step.EndTime != nil {
		r.stepDuration.Record(ctx, step.EndTime.Sub(*step.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemsRead.Add(ctx, int64(count), otelmetric.WithAttributes(attribute.String("step.name", stepName)))
}

func (r *OTelRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsWritten.Add(ctx, int64(count), otelmetric.WithAttributes(attribute.String("step.name", stepName)))
}

func (r *OTelRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommits.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("step.name", stepName)))
}

func (r *OTelRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunkRollback.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("step.name", stepName)))
}

func (r *OTelRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operation.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)
