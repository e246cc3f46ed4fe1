package metrics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/salesync/pkg/batch/core/metrics"
	logger "github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer emitting spans through tp.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartJobSpan starts a span for a JobRun. The returned function records the final status and ends it.
func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, run *model.JobRun) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+run.JobName, trace.WithAttributes(
		attribute.String("job.name", run.JobName),
		attribute.String("job.run_id", run.ID),
		attribute.String("job.instance_id", run.InstanceID),
	))
	logger.Debugf("Tracer: job span started for '%s' (run %s).", run.JobName, run.ID)
	return ctx, func() {
		span.SetAttributes(
			attribute.String("job.status", run.Status.String()),
			attribute.String("job.exit_status", run.ExitStatus.String()),
		)
		if run.Status == model.StatusFailed {
			span.SetStatus(codes.Error, "job failed")
		}
		span.End()
	}
}

// StartStepSpan starts a child span for a StepRun.
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, step *model.StepRun) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+step.Name, trace.WithAttributes(
		attribute.String("step.name", step.Name),
		attribute.String("step.run_id", step.ID),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("step.status", step.Status.String()),
			attribute.Int64("step.read_count", step.ReadCount),
			attribute.Int64("step.write_count", step.WriteCount),
			attribute.Int64("step.commit_count", step.CommitCount),
		)
		if step.Status == model.StatusFailed {
			span.SetStatus(codes.Error, "step failed")
		}
		span.End()
	}
}

// RecordError records err on the span carried by ctx.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent adds an event to the span carried by ctx.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

// toAttributes converts a loosely typed map, sorted by key.
func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
