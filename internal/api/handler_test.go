package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/salesync/internal/api"
	"github.com/tigerroll/salesync/internal/job"
	"github.com/tigerroll/salesync/internal/sales/fetch"
	"github.com/tigerroll/salesync/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	inframetrics "github.com/tigerroll/salesync/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/salesync/pkg/batch/test"
)

const syncJob = "sync-sales-job"

type mockService struct {
	mock.Mock
}

func (m *mockService) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobRun, error) {
	args := m.Called(ctx, jobName, params)
	run, _ := args.Get(0).(*model.JobRun)
	return run, args.Error(1)
}

func (m *mockService) Status(ctx context.Context, id string) (*model.JobRun, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*model.JobRun)
	return run, args.Error(1)
}

func (m *mockService) Stop(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockService) NextParameters(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, error) {
	args := m.Called(ctx, jobName, params)
	return args.Get(0).(model.JobParameters), args.Error(1)
}

func newServer(t *testing.T, svc api.JobService) *httptest.Server {
	t.Helper()
	exposition := &inframetrics.Exposition{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "batch_step_read_total 0")
	})}
	srv := httptest.NewServer(api.NewRouter(api.NewJobHandler(svc, syncJob), exposition))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSubmit_WithRunIDStartsThatInstance(t *testing.T) {
	svc := new(mockService)
	run := batchtest.NewTestJobRun(t, syncJob, batchtest.NewTestJobParameters(nil))
	svc.On("Start", mock.Anything, syncJob, mock.MatchedBy(func(p model.JobParameters) bool {
		bucket, _ := p.GetString(fetch.BucketParam)
		id, _ := p.GetInt64(job.RunIDParam)
		return bucket == "sales-2025" && id == 3
	})).Return(run, nil)

	srv := newServer(t, svc)
	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(`{"bucket":"sales-2025","run_id":3}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body api.RunResponse
	decode(t, resp, &body)
	assert.Equal(t, run.ID, body.ID)
	assert.Equal(t, model.StatusStarting, body.Status)
	svc.AssertExpectations(t)
}

func TestSubmit_WithoutRunIDUsesNextParameters(t *testing.T) {
	svc := new(mockService)
	next := batchtest.NewTestJobParameters(map[string]interface{}{job.RunIDParam: int64(8)})
	run := batchtest.NewTestJobRun(t, syncJob, next)
	svc.On("NextParameters", mock.Anything, syncJob, mock.Anything).Return(next, nil)
	svc.On("Start", mock.Anything, syncJob, next).Return(run, nil)

	srv := newServer(t, svc)
	resp, err := http.Post(srv.URL+"/jobs", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	svc.AssertExpectations(t)
}

func TestSubmit_Conflicts(t *testing.T) {
	for _, sentinel := range []error{usecase.ErrJobRunAlreadyRunning, usecase.ErrJobInstanceAlreadyComplete} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			svc := new(mockService)
			svc.On("Start", mock.Anything, syncJob, mock.Anything).Return(nil, sentinel)

			srv := newServer(t, svc)
			resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(`{"run_id":1}`))
			require.NoError(t, err)
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestSubmit_RejectsMalformedBody(t *testing.T) {
	srv := newServer(t, new(mockService))
	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(`{"run_id":"three"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGet_ReturnsRunWithSummary(t *testing.T) {
	run := batchtest.NewTestJobRun(t, syncJob, batchtest.NewTestJobParameters(nil))
	require.NoError(t, run.MarkStarted())
	run.Context.SetInputFilePath("/data/2025-sales.csv")
	load := model.NewStepRun(run.ID, job.LoadStepName)
	require.NoError(t, load.MarkStarted())
	load.ApplyCheckpoint(model.Checkpoint{LinesConsumed: 10, ReadCount: 10, WriteCount: 10, CommitCount: 1})
	require.NoError(t, load.MarkFailed(exception.NewDecodeError("reader", 12, "malformed sales record", nil)))
	run.StepRuns = append(run.StepRuns, load)
	require.NoError(t, run.MarkFailed(fmt.Errorf("load failed")))

	svc := new(mockService)
	svc.On("Status", mock.Anything, run.ID).Return(run, nil)

	srv := newServer(t, svc)
	resp, err := http.Get(srv.URL + "/jobs/" + run.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body api.RunResponse
	decode(t, resp, &body)
	assert.Equal(t, model.StatusFailed, body.Status)
	assert.Equal(t, "/data/2025-sales.csv", body.InputFilePath)
	require.Len(t, body.Steps, 1)
	assert.Equal(t, int64(1), body.Steps[0].CommitCount)
	assert.Equal(t, job.LoadStepName, body.Summary.FailedStep)
	assert.Equal(t, exception.KindDecode, body.Summary.ErrorKind)
	assert.Equal(t, int64(10), body.Summary.CommittedRows)
}

func TestGet_UnknownRunIs404(t *testing.T) {
	svc := new(mockService)
	svc.On("Status", mock.Anything, "nope").Return(nil, repository.ErrJobRunNotFound)

	srv := newServer(t, svc)
	resp, err := http.Get(srv.URL + "/jobs/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStop(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "running", status: http.StatusAccepted},
		{name: "unknown", err: repository.ErrJobRunNotFound, status: http.StatusNotFound},
		{name: "finished", err: fmt.Errorf("%w: job run r1 is COMPLETED", usecase.ErrJobRunNotRunning), status: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Stop", mock.Anything, "r1").Return(tt.err)

			srv := newServer(t, svc)
			resp, err := http.Post(srv.URL+"/jobs/r1/stop", "application/json", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newServer(t, new(mockService))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
