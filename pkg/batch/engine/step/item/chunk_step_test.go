package item_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
	"github.com/tigerroll/salesync/pkg/batch/engine/step"
	"github.com/tigerroll/salesync/pkg/batch/engine/step/item"
	"github.com/tigerroll/salesync/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/salesync/pkg/batch/test"
)

// lineReader yields the integers 1..n, one per line. A line listed in badLines fails to decode.
type lineReader struct {
	n        int64
	badLines map[int64]bool
	pos      int64
	opened   model.Checkpoint
	closed   bool
}

func (r *lineReader) Open(_ context.Context, _ model.JobContext, cp model.Checkpoint) error {
	r.opened = cp
	r.pos = cp.LinesConsumed
	return nil
}

func (r *lineReader) Read(context.Context) (int64, error) {
	if r.pos >= r.n {
		return 0, port.ErrNoMoreItems
	}
	r.pos++
	if r.badLines[r.pos] {
		return 0, exception.NewDecodeError("lineReader", r.pos, "bad line", nil)
	}
	return r.pos, nil
}

func (r *lineReader) Position() int64 { return r.pos }

func (r *lineReader) Close(context.Context) error {
	r.closed = true
	return nil
}

type labelProcessor struct{}

func (labelProcessor) Process(_ context.Context, v int64) (string, error) {
	return fmt.Sprintf("row-%d", v), nil
}

type insertWriter struct{}

func (insertWriter) Write(ctx context.Context, t tx.Tx, items []string) error {
	for _, it := range items {
		if err := t.Insert(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// stopAfterChunks raises the stop signal once the given number of chunks committed.
type stopAfterChunks struct {
	signal *port.StopSignal
	after  int
	seen   int
}

func (l *stopAfterChunks) BeforeChunk(context.Context, *model.StepRun) {}

func (l *stopAfterChunks) AfterChunk(context.Context, *model.StepRun) {
	l.seen++
	if l.seen == l.after {
		l.signal.Raise()
	}
}

func (l *stopAfterChunks) AfterChunkError(context.Context, *model.StepRun, error) {}

type fixture struct {
	repo   *inmemory.JobRepository
	jobRun *model.JobRun
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := inmemory.NewJobRepository()
	run := batchtest.NewTestJobRun(t, "syncSalesJob", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 1}))
	return &fixture{repo: repo, jobRun: run}
}

func (f *fixture) newStepRun(t *testing.T) *model.StepRun {
	t.Helper()
	sr := model.NewStepRun(f.jobRun.ID, "loadStep")
	require.NoError(t, f.repo.SaveStepRun(context.Background(), sr))
	return sr
}

func (f *fixture) newStep(reader *lineReader, txm tx.TransactionManager, opts ...item.Option) *item.ChunkStep[int64, string] {
	lc := step.NewLifecycle(f.repo, nil, nil, nil)
	return item.NewChunkStep[int64, string]("loadStep", reader, labelProcessor{}, insertWriter{}, txm, lc, opts...)
}

func labels(from, to int) []interface{} {
	out := make([]interface{}, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("row-%d", i))
	}
	return out
}

func TestChunkStep_CommitsEveryTenItems(t *testing.T) {
	f := newFixture(t)
	sr := f.newStepRun(t)
	reader := &lineReader{n: 25}
	txm := batchtest.NewFakeTxManager("workload")

	s := f.newStep(reader, txm)
	require.Equal(t, item.DefaultChunkSize, s.ChunkSize())
	require.NoError(t, s.Execute(context.Background(), f.jobRun, sr))

	assert.Equal(t, 3, txm.Commits())
	assert.Equal(t, labels(1, 25), txm.Committed())
	assert.Equal(t, model.StatusCompleted, sr.Status)
	assert.Equal(t, model.ExitStatusCompleted, sr.ExitStatus)
	assert.Equal(t, int64(25), sr.ReadCount)
	assert.Equal(t, int64(25), sr.WriteCount)
	assert.Equal(t, int64(3), sr.CommitCount)
	assert.True(t, reader.closed)

	cp, err := f.repo.FindCheckpoint(context.Background(), sr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), cp.LinesConsumed)
}

func TestChunkStep_EmptyInputCompletesWithoutCommit(t *testing.T) {
	f := newFixture(t)
	sr := f.newStepRun(t)
	txm := batchtest.NewFakeTxManager("workload")

	require.NoError(t, f.newStep(&lineReader{}, txm).Execute(context.Background(), f.jobRun, sr))

	assert.Equal(t, 0, txm.Commits())
	assert.Equal(t, model.StatusCompleted, sr.Status)
	assert.Nil(t, sr.Checkpoint)
}

func TestChunkStep_FailedCommitKeepsLastCheckpointAndResumes(t *testing.T) {
	f := newFixture(t)
	sr := f.newStepRun(t)
	txm := batchtest.NewFakeTxManager("workload")
	txm.CommitErr = func(n int) error {
		if n == 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	err := f.newStep(&lineReader{n: 25}, txm).Execute(context.Background(), f.jobRun, sr)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindWrite))
	assert.Equal(t, model.StatusFailed, sr.Status)
	assert.Equal(t, exception.KindWrite, sr.FailureKind)
	assert.Equal(t, int64(10), sr.WriteCount)
	assert.Equal(t, labels(1, 10), txm.Committed())

	cp, err := f.repo.FindCheckpoint(context.Background(), sr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cp.LinesConsumed)
	assert.Equal(t, int64(1), cp.CommitCount)

	// Restart: the copied step run carries the checkpoint of the failed one.
	runs, err := f.repo.FindStepRunsByJobRun(context.Background(), f.jobRun.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	restarted := runs[0].CopyForRestart(f.jobRun.ID)
	require.NoError(t, f.repo.SaveStepRun(context.Background(), restarted))

	reader := &lineReader{n: 25}
	retry := batchtest.NewFakeTxManager("workload")
	require.NoError(t, f.newStep(reader, retry).Execute(context.Background(), f.jobRun, restarted))

	assert.Equal(t, int64(10), reader.opened.LinesConsumed)
	assert.Equal(t, labels(11, 25), retry.Committed())
	assert.Equal(t, model.StatusCompleted, restarted.Status)
	assert.Equal(t, int64(25), restarted.WriteCount)
	assert.Equal(t, int64(3), restarted.CommitCount)
}

// joiningRepository writes checkpoints inside transactions opened on "workload".
type joiningRepository struct {
	*inmemory.JobRepository
	outsideTx int
}

func (r *joiningRepository) Resource() string { return "workload" }

func (r *joiningRepository) SaveCheckpoint(ctx context.Context, stepRunID string, cp model.Checkpoint) error {
	if _, ok := tx.FromContext(ctx); !ok {
		r.outsideTx++
	}
	return r.JobRepository.SaveCheckpoint(ctx, stepRunID, cp)
}

func TestChunkStep_FailedCommitLeavesJoinedCheckpointToTransaction(t *testing.T) {
	repo := &joiningRepository{JobRepository: inmemory.NewJobRepository()}
	run := batchtest.NewTestJobRun(t, "syncSalesJob", batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 1}))
	sr := model.NewStepRun(run.ID, "loadStep")
	require.NoError(t, repo.SaveStepRun(context.Background(), sr))

	txm := batchtest.NewFakeTxManager("workload")
	txm.CommitErr = func(n int) error {
		if n == 2 {
			return errors.New("connection reset")
		}
		return nil
	}
	lc := step.NewLifecycle(repo, nil, nil, nil)
	s := item.NewChunkStep[int64, string]("loadStep", &lineReader{n: 25}, labelProcessor{}, insertWriter{}, txm, lc)

	require.Error(t, s.Execute(context.Background(), run, sr))
	assert.Zero(t, repo.outsideTx, "no checkpoint written outside the chunk transaction")
	assert.Equal(t, int64(10), sr.WriteCount)
}

func TestChunkStep_DecodeErrorRollsBackChunk(t *testing.T) {
	f := newFixture(t)
	sr := f.newStepRun(t)
	txm := batchtest.NewFakeTxManager("workload")

	err := f.newStep(&lineReader{n: 25, badLines: map[int64]bool{15: true}}, txm).Execute(context.Background(), f.jobRun, sr)
	require.Error(t, err)

	line, ok := exception.PositionOf(err)
	require.True(t, ok)
	assert.Equal(t, int64(15), line)
	assert.Equal(t, exception.KindDecode, sr.FailureKind)
	assert.Equal(t, labels(1, 10), txm.Committed())
	assert.Equal(t, int64(10), sr.WriteCount)
	assert.Equal(t, model.StatusFailed, sr.Status)
}

func TestChunkStep_StopsAtChunkBoundary(t *testing.T) {
	f := newFixture(t)
	sr := f.newStepRun(t)
	txm := batchtest.NewFakeTxManager("workload")
	signal := &port.StopSignal{}
	listener := &stopAfterChunks{signal: signal, after: 1}

	ctx := port.WithStopSignal(context.Background(), signal)
	require.NoError(t, f.newStep(&lineReader{n: 25}, txm, item.WithChunkListeners(listener)).Execute(ctx, f.jobRun, sr))

	assert.Equal(t, model.StatusStopped, sr.Status)
	assert.Equal(t, model.ExitStatusStopped, sr.ExitStatus)
	assert.Equal(t, 1, txm.Commits())
	assert.Equal(t, int64(10), sr.WriteCount)
}

func TestChunkStep_CustomChunkSizeWithMockManager(t *testing.T) {
	f := newFixture(t)
	sr := f.newStepRun(t)

	mockTx := new(batchtest.MockTx)
	mockTx.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockTx.On("Resource").Return("workload").Maybe()
	txm := new(batchtest.MockTxManager)
	txm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	txm.On("Commit", mockTx).Return(nil)

	s := f.newStep(&lineReader{n: 7}, txm, item.WithChunkSize(3))
	require.NoError(t, s.Execute(context.Background(), f.jobRun, sr))

	txm.AssertNumberOfCalls(t, "Commit", 3)
	mockTx.AssertNumberOfCalls(t, "Insert", 7)
	txm.AssertNotCalled(t, "Rollback", mock.Anything)
	assert.Equal(t, int64(3), sr.CommitCount)
}
