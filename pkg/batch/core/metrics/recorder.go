// Package metrics declares the observability hooks called by the engine.
// Backends live in infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

// MetricRecorder records job, step and chunk measurements.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, run *model.JobRun)
	RecordJobEnd(ctx context.Context, run *model.JobRun)
	RecordStepStart(ctx context.Context, jobName string, step *model.StepRun)
	RecordStepEnd(ctx context.Context, jobName string, step *model.StepRun)
	// RecordItemRead counts items decoded by a chunk step.
	RecordItemRead(ctx context.Context, stepName string, count int)
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordChunkCommit records one committed chunk of count items.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a chunk abandoned after an error.
	RecordChunkRollback(ctx context.Context, stepName string)
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
