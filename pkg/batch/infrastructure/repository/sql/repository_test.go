package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/core/tx"
	sqlrepo "github.com/tigerroll/salesync/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

func setupMockRepository(t *testing.T) (*sqlrepo.JobRepository, *gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlrepo.NewJobRepository(gormDB, "metadata"), gormDB, mock
}

func newInstance(t *testing.T) *model.JobInstance {
	params := model.NewJobParameters()
	params.Put("run.id", 1)
	inst, err := model.NewJobInstance("sync-sales-job", params)
	require.NoError(t, err)
	return inst
}

func TestJobRepository_SaveJobInstance(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	mock.ExpectExec("INSERT INTO `batch_job_instance`").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveJobInstance(context.Background(), newInstance(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_FindJobInstance(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	inst := newInstance(t)

	rows := sqlmock.NewRows([]string{"id", "job_name", "parameters", "params_hash", "create_time", "version"}).
		AddRow(inst.ID, inst.JobName, `{"run.id":1}`, inst.ParamsHash, time.Now(), 0)
	mock.ExpectQuery("SELECT \\* FROM `batch_job_instance` WHERE job_name = \\? AND params_hash = \\?").WillReturnRows(rows)

	found, err := repo.FindJobInstance(context.Background(), inst.JobName, inst.ParamsHash)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, found.ID)
	v, ok := found.Parameters.GetInt64("run.id")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_FindJobInstance_NotFound(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	mock.ExpectQuery("SELECT \\* FROM `batch_job_instance`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindJobInstance(context.Background(), "sync-sales-job", "nope")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestJobRepository_UpdateJobRun(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	run := model.NewJobRun(newInstance(t))
	require.NoError(t, run.MarkStarted())

	mock.ExpectExec("UPDATE `batch_job_run` SET .* WHERE id = \\? AND version = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateJobRun(context.Background(), run))
	assert.Equal(t, 1, run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_UpdateStepRun_OptimisticLocking(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	step := model.NewStepRun(model.NewID(), "loadStep")
	step.Version = 3

	mock.ExpectExec("UPDATE `batch_step_run` SET .* WHERE id = \\? AND version = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStepRun(context.Background(), step)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 3, step.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_FindLatestJobRun_LoadsStepsAndCheckpoints(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	now := time.Now()

	runRows := sqlmock.NewRows([]string{"id", "job_instance_id", "job_name", "parameters", "status", "exit_status",
		"job_context", "failures", "restart_count", "create_time", "start_time", "end_time", "last_updated", "version"}).
		AddRow("run-2", "inst-1", "sync-sales-job", `{}`, "FAILED", "FAILED",
			`{"input.file.path":"/tmp/sales.csv"}`, `["boom"]`, 1, now, now, now, now, 2)
	mock.ExpectQuery("SELECT \\* FROM `batch_job_run` WHERE job_instance_id = \\? ORDER BY create_time DESC, restart_count DESC").
		WillReturnRows(runRows)

	stepRows := sqlmock.NewRows([]string{"id", "job_run_id", "step_name", "status", "exit_status", "read_count",
		"write_count", "commit_count", "failures", "failure_kind", "create_time", "start_time", "end_time", "last_updated", "version"}).
		AddRow("step-1", "run-2", "downloadFileStep", "COMPLETED", "COMPLETED", 0, 0, 0, `[]`, "", now, now, now, now, 1).
		AddRow("step-2", "run-2", "loadStep", "FAILED", "FAILED", 20, 10, 1, `["write failed"]`, "WriteError", now.Add(time.Second), now, now, now, 3)
	mock.ExpectQuery("SELECT \\* FROM `batch_step_run` WHERE job_run_id = \\? ORDER BY create_time ASC").
		WillReturnRows(stepRows)

	cpRows := sqlmock.NewRows([]string{"step_run_id", "checkpoint_data", "last_updated"}).
		AddRow("step-2", `{"lines_consumed":10,"read_count":10,"write_count":10,"commit_count":1}`, now)
	mock.ExpectQuery("SELECT \\* FROM `batch_checkpoint` WHERE step_run_id IN \\(\\?,\\?\\)").
		WillReturnRows(cpRows)

	run, err := repo.FindLatestJobRun(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Equal(t, 1, run.RestartCount)
	path, ok := run.Context.InputFilePath()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/sales.csv", path)
	require.Len(t, run.StepRuns, 2)
	assert.Nil(t, run.StepRuns[0].Checkpoint)
	require.NotNil(t, run.StepRuns[1].Checkpoint)
	assert.Equal(t, int64(10), run.StepRuns[1].Checkpoint.LinesConsumed)
	assert.Equal(t, exception.KindWrite, run.StepRuns[1].FailureKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_SaveCheckpoint_JoinsContextTransaction(t *testing.T) {
	repo, gormDB, mock := setupMockRepository(t)
	tm := gormadapter.NewTransactionManager("metadata", gormDB)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `batch_checkpoint` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	cp := model.Checkpoint{LinesConsumed: 10, ReadCount: 10, WriteCount: 10, CommitCount: 1}
	require.NoError(t, repo.SaveCheckpoint(tx.WithTx(ctx, txn), "step-2", cp))
	require.NoError(t, tm.Commit(txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_FindCheckpoint_NotFound(t *testing.T) {
	repo, _, mock := setupMockRepository(t)
	mock.ExpectQuery("SELECT \\* FROM `batch_checkpoint` WHERE step_run_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"step_run_id", "checkpoint_data", "last_updated"}))

	_, err := repo.FindCheckpoint(context.Background(), "step-x")
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound)
}
