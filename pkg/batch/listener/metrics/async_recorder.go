// Package metrics decouples metric recording from the chunk loop.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/metrics"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// MetricEvent represents a metric event to be recorded asynchronously.
type MetricEvent struct {
	Type     string
	JobRun   *model.JobRun
	StepRun  *model.StepRun
	JobName  string
	StepName string
	Count    int
	Duration time.Duration
	Tags     map[string]string
}

// Metric event type constants
const (
	MetricEventTypeJobStart       = "job_start"
	MetricEventTypeJobEnd         = "job_end"
	MetricEventTypeStepStart      = "step_start"
	MetricEventTypeStepEnd        = "step_end"
	MetricEventTypeItemRead       = "item_read"
	MetricEventTypeItemWrite      = "item_write"
	MetricEventTypeChunkCommit    = "chunk_commit"
	MetricEventTypeChunkRollback  = "chunk_rollback"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder pushes events to a channel and records them on a
// separate goroutine. Runs and steps are snapshotted when enqueued.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	once         sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker. A bufferSize of 0 or less uses 100.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain what is already queued before exiting.
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	// The caller's context may be cancelled by the time the event is processed.
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeJobStart:
		r.syncRecorder.RecordJobStart(ctx, event.JobRun)
	case MetricEventTypeJobEnd:
		r.syncRecorder.RecordJobEnd(ctx, event.JobRun)
	case MetricEventTypeStepStart:
		r.syncRecorder.RecordStepStart(ctx, event.JobName, event.StepRun)
	case MetricEventTypeStepEnd:
		r.syncRecorder.RecordStepEnd(ctx, event.JobName, event.StepRun)
	case MetricEventTypeItemRead:
		r.syncRecorder.RecordItemRead(ctx, event.StepName, event.Count)
	case MetricEventTypeItemWrite:
		r.syncRecorder.RecordItemWrite(ctx, event.StepName, event.Count)
	case MetricEventTypeChunkCommit:
		r.syncRecorder.RecordChunkCommit(ctx, event.StepName, event.Count)
	case MetricEventTypeChunkRollback:
		r.syncRecorder.RecordChunkRollback(ctx, event.StepName)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.StepName, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after the queued events are recorded. It is safe to call more than once.
func (r *AsyncMetricRecorder) Close() {
	r.once.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

// sendEvent never blocks the caller; a full queue drops the event.
func (r *AsyncMetricRecorder) sendEvent(event MetricEvent, id string) {
	select {
	case <-r.stopCh:
		return
	default:
	}
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s, ID: %s). Event discarded.", event.Type, id)
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, run *model.JobRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeJobStart, JobRun: run.Clone()}, run.ID)
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, run *model.JobRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeJobEnd, JobRun: run.Clone()}, run.ID)
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, jobName string, step *model.StepRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeStepStart, JobName: jobName, StepRun: step.Clone()}, step.ID)
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, jobName string, step *model.StepRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeStepEnd, JobName: jobName, StepRun: step.Clone()}, step.ID)
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeItemRead, StepName: stepName, Count: count}, stepName)
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeItemWrite, StepName: stepName, Count: count}, stepName)
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeChunkCommit, StepName: stepName, Count: count}, stepName)
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeChunkRollback, StepName: stepName}, stepName)
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRecordDuration, StepName: name, Duration: duration, Tags: tags}, name)
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// NewAsyncMetricRecorderWrapper decorates the configured recorder and closes it on shutdown.
// A non-positive buffer size in the configuration leaves the recorder synchronous.
func NewAsyncMetricRecorderWrapper(lc fx.Lifecycle, cfg *config.Config, syncRecorder metrics.MetricRecorder) metrics.MetricRecorder {
	bufferSize := cfg.Salesync.Telemetry.Metrics.AsyncBufferSize
	if bufferSize <= 0 {
		return syncRecorder
	}
	asyncRecorder := NewAsyncMetricRecorder(bufferSize, syncRecorder)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			asyncRecorder.Close()
			return nil
		},
	})
	logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
	return asyncRecorder
}
