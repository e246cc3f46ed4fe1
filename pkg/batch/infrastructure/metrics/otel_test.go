package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/salesync/pkg/batch/test"
)

func TestOpenTelemetryTracer_JobAndStepSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := metrics.NewOpenTelemetryTracer(tp)

	run := test.NewTestJobRun(t, "sync-sales-job", test.NewTestJobParameters(nil))
	require.NoError(t, run.MarkStarted())
	step := model.NewStepRun(run.ID, "loadStep")
	require.NoError(t, step.MarkStarted())

	jobCtx, endJob := tracer.StartJobSpan(context.Background(), run)
	stepCtx, endStep := tracer.StartStepSpan(jobCtx, step)
	tracer.RecordEvent(stepCtx, "chunk.committed", map[string]interface{}{"count": 10, "step": "loadStep"})
	tracer.RecordError(stepCtx, "loadStep", errors.New("boom"))
	require.NoError(t, step.MarkFailed(errors.New("boom")))
	endStep()
	require.NoError(t, run.MarkFailed(errors.New("boom")))
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	stepSpan, jobSpan := spans[0], spans[1]

	assert.Equal(t, "step loadStep", stepSpan.Name())
	assert.Equal(t, "job sync-sales-job", jobSpan.Name())
	assert.Equal(t, jobSpan.SpanContext().SpanID(), stepSpan.Parent().SpanID())
	assert.Equal(t, codes.Error, stepSpan.Status().Code)
	assert.Equal(t, codes.Error, jobSpan.Status().Code)
	assert.Contains(t, jobSpan.Attributes(), attribute.String("job.run_id", run.ID))
	assert.Contains(t, jobSpan.Attributes(), attribute.String("job.status", "FAILED"))

	var names []string
	for _, ev := range stepSpan.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"chunk.committed", "exception"}, names)
	assert.Equal(t, []attribute.KeyValue{attribute.Int("count", 10), attribute.String("step", "loadStep")}, stepSpan.Events()[0].Attributes)
}

func TestOpenTelemetryTracer_RecordErrorWithoutSpanIsSafe(t *testing.T) {
	tracer := metrics.NewOpenTelemetryTracer(sdktrace.NewTracerProvider())
	assert.NotPanics(t, func() {
		tracer.RecordError(context.Background(), "loadStep", errors.New("boom"))
		tracer.RecordError(context.Background(), "loadStep", nil)
	})
}

func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestOTelRecorder_CollectsChunkMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := metrics.NewOTelRecorder(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	rec.RecordItemRead(ctx, "loadStep", 10)
	rec.RecordItemRead(ctx, "loadStep", 10)
	rec.RecordItemRead(ctx, "loadStep", 5)
	rec.RecordItemWrite(ctx, "loadStep", 25)
	rec.RecordChunkCommit(ctx, "loadStep", 10)
	rec.RecordChunkCommit(ctx, "loadStep", 10)
	rec.RecordChunkCommit(ctx, "loadStep", 5)
	rec.RecordChunkRollback(ctx, "loadStep")
	rec.RecordDuration(ctx, "step", time.Second, map[string]string{"job": "sync-sales-job"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(25), sumInt64(t, rm, "batch.step.items.read"))
	assert.Equal(t, int64(25), sumInt64(t, rm, "batch.step.items.written"))
	assert.Equal(t, int64(3), sumInt64(t, rm, "batch.step.chunk.commits"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "batch.step.chunk.rollbacks"))
}
