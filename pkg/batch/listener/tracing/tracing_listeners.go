// Package tracing annotates step spans with chunk boundaries.
package tracing

import (
	"context"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/metrics"
)

// TracingChunkListener adds one span event per chunk to the enclosing step span.
type TracingChunkListener struct {
	tracer metrics.Tracer
}

func NewTracingChunkListener(tracer metrics.Tracer) *TracingChunkListener {
	return &TracingChunkListener{tracer: tracer}
}

func (l *TracingChunkListener) BeforeChunk(ctx context.Context, step *model.StepRun) {}

func (l *TracingChunkListener) AfterChunk(ctx context.Context, step *model.StepRun) {
	attrs := map[string]interface{}{
		"step.name":    step.Name,
		"commit_count": step.CommitCount,
		"write_count":  step.WriteCount,
	}
	if step.Checkpoint != nil {
		attrs["lines_consumed"] = step.Checkpoint.LinesConsumed
	}
	l.tracer.RecordEvent(ctx, "chunk.committed", attrs)
}

func (l *TracingChunkListener) AfterChunkError(ctx context.Context, step *model.StepRun, err error) {
	l.tracer.RecordEvent(ctx, "chunk.rolled_back", map[string]interface{}{
		"step.name":    step.Name,
		"commit_count": step.CommitCount,
		"error":        err.Error(),
	})
}

var _ port.ChunkListener = (*TracingChunkListener)(nil)
