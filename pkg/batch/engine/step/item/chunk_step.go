// Package item implements the chunk-oriented step.
package item

import (
	"context"
	"errors"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
	"github.com/tigerroll/salesync/pkg/batch/engine/step"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// DefaultChunkSize is the number of items committed per transaction when none is configured.
const DefaultChunkSize = 10

// ChunkStep reads, processes and writes items in fixed-size chunks. Each chunk
// is one transaction; the checkpoint saved with it lets a restarted run resume
// after the last committed chunk.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	chunkSize int

	txManager      tx.TransactionManager
	repo           repository.JobRepository
	lifecycle      step.Lifecycle
	chunkListeners []port.ChunkListener
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// Option configures a ChunkStep.
type Option func(*chunkOptions)

type chunkOptions struct {
	chunkSize      int
	chunkListeners []port.ChunkListener
}

// WithChunkSize sets the commit interval. Values below 1 keep the default.
func WithChunkSize(n int) Option {
	return func(o *chunkOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithChunkListeners registers chunk boundary listeners.
func WithChunkListeners(listeners ...port.ChunkListener) Option {
	return func(o *chunkOptions) { o.chunkListeners = append(o.chunkListeners, listeners...) }
}

// NewChunkStep creates a chunk step. txManager must open transactions on the
// connection the writer targets.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	lifecycle step.Lifecycle,
	opts ...Option,
) *ChunkStep[I, O] {
	o := chunkOptions{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		chunkSize:      o.chunkSize,
		txManager:      txManager,
		repo:           lifecycle.Repository,
		lifecycle:      lifecycle,
		chunkListeners: o.chunkListeners,
	}
}

func (s *ChunkStep[I, O]) Name() string { return s.name }

// ChunkSize returns the commit interval.
func (s *ChunkStep[I, O]) ChunkSize() int { return s.chunkSize }

// Execute runs the chunk loop until the reader is exhausted, an error occurs,
// or a stop is requested between two chunks.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobRun *model.JobRun, stepRun *model.StepRun) error {
	var cp model.Checkpoint
	if stepRun.Checkpoint != nil {
		cp = *stepRun.Checkpoint
		stepRun.ApplyCheckpoint(cp)
		logger.Infof("Step '%s' resumes after %d committed lines (%d commits).", s.name, cp.LinesConsumed, cp.CommitCount)
	}

	spanCtx, end, err := s.lifecycle.Begin(ctx, jobRun.JobName, stepRun)
	if err != nil {
		return err
	}
	defer end()

	if err := s.reader.Open(spanCtx, jobRun.Context, cp); err != nil {
		return s.lifecycle.End(spanCtx, jobRun.JobName, stepRun, step.Outcome{Err: err})
	}

	stopped, runErr := s.loop(spanCtx, stepRun, cp)
	if closeErr := s.reader.Close(spanCtx); closeErr != nil {
		logger.Warnf("Step '%s': failed to close reader: %v", s.name, closeErr)
	}
	return s.lifecycle.End(spanCtx, jobRun.JobName, stepRun, step.Outcome{Err: runErr, Stopped: stopped})
}

func (s *ChunkStep[I, O]) loop(ctx context.Context, stepRun *model.StepRun, cp model.Checkpoint) (stopped bool, err error) {
	for {
		if port.StopRequested(ctx) {
			logger.Infof("Step '%s': stop requested, halting at chunk boundary after %d commits.", s.name, stepRun.CommitCount)
			return true, nil
		}
		for _, l := range s.chunkListeners {
			l.BeforeChunk(ctx, stepRun)
		}
		next, n, done, err := s.processChunk(ctx, stepRun, cp)
		if err != nil {
			s.lifecycle.Recorder.RecordChunkRollback(ctx, s.name)
			for _, l := range s.chunkListeners {
				l.AfterChunkError(ctx, stepRun, err)
			}
			return false, err
		}
		if n > 0 {
			cp = next
			for _, l := range s.chunkListeners {
				l.AfterChunk(ctx, stepRun)
			}
		}
		if done {
			return false, nil
		}
	}
}

// processChunk reads and processes up to chunkSize items and commits them with
// the advanced checkpoint. done reports that the reader is exhausted.
func (s *ChunkStep[I, O]) processChunk(ctx context.Context, stepRun *model.StepRun, prev model.Checkpoint) (next model.Checkpoint, n int, done bool, err error) {
	items := make([]O, 0, s.chunkSize)
	for len(items) < s.chunkSize {
		in, readErr := s.reader.Read(ctx)
		if errors.Is(readErr, port.ErrNoMoreItems) {
			done = true
			break
		}
		if readErr != nil {
			return prev, 0, false, readErr
		}
		out, procErr := s.processor.Process(ctx, in)
		if procErr != nil {
			return prev, 0, false, procErr
		}
		items = append(items, out)
	}
	n = len(items)
	if n == 0 {
		return prev, 0, true, nil
	}
	s.lifecycle.Recorder.RecordItemRead(ctx, s.name, n)

	next = model.Checkpoint{
		LinesConsumed: s.reader.Position(),
		ReadCount:     prev.ReadCount + int64(n),
		WriteCount:    prev.WriteCount + int64(n),
		CommitCount:   prev.CommitCount + 1,
	}
	if err := s.commit(ctx, stepRun, items, prev, next); err != nil {
		return prev, 0, false, err
	}

	stepRun.ApplyCheckpoint(next)
	if err := s.repo.UpdateStepRun(ctx, stepRun); err != nil {
		return next, n, false, exception.NewBatchError(s.name, "failed to persist step counters", err)
	}
	s.lifecycle.Recorder.RecordItemWrite(ctx, s.name, n)
	s.lifecycle.Recorder.RecordChunkCommit(ctx, s.name, n)
	logger.Debugf("Step '%s': committed chunk %d (%d items, %d lines consumed).", s.name, next.CommitCount, n, next.LinesConsumed)
	return next, n, done, nil
}

// commit writes items and the checkpoint in one transaction. A repository on
// another connection saves the checkpoint outside it, so a failed commit
// restores prev there. A repository inside the transaction is left alone:
// the outcome of a failed commit is unknown and the transaction decides it.
func (s *ChunkStep[I, O]) commit(ctx context.Context, stepRun *model.StepRun, items []O, prev, next model.Checkpoint) error {
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewWriteError(s.name, "failed to begin chunk transaction", err)
	}
	txCtx := tx.WithTx(ctx, t)

	if err := s.writer.Write(txCtx, t, items); err != nil {
		s.rollback(t)
		if exception.KindOf(err) == exception.KindUnknown {
			err = exception.NewWriteError(s.name, "chunk write failed", err)
		}
		return err
	}
	if err := s.repo.SaveCheckpoint(txCtx, stepRun.ID, next); err != nil {
		s.rollback(t)
		s.restoreCheckpoint(ctx, t, stepRun.ID, prev)
		return exception.NewWriteError(s.name, "failed to save checkpoint", err)
	}
	if err := s.txManager.Commit(t); err != nil {
		s.restoreCheckpoint(ctx, t, stepRun.ID, prev)
		return exception.NewWriteError(s.name, "chunk commit failed", err)
	}
	return nil
}

func (s *ChunkStep[I, O]) rollback(t tx.Tx) {
	if err := s.txManager.Rollback(t); err != nil {
		logger.Warnf("Step '%s': rollback failed: %v", s.name, err)
	}
}

func (s *ChunkStep[I, O]) restoreCheckpoint(ctx context.Context, t tx.Tx, stepRunID string, prev model.Checkpoint) {
	if tx.Joins(s.repo, t) {
		return
	}
	if err := s.repo.SaveCheckpoint(ctx, stepRunID, prev); err != nil {
		logger.Errorf("Step '%s': failed to restore checkpoint after rollback: %v", s.name, err)
	}
}
