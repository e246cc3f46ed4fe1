package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/salesync/pkg/batch/core/metrics"
	"github.com/tigerroll/salesync/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/salesync/pkg/batch/test"
)

func TestPrometheusRecorder_ChunkCounters(t *testing.T) {
	r := metrics.NewPrometheusRecorder()
	ctx := context.Background()

	r.RecordItemRead(ctx, "loadStep", 10)
	r.RecordItemRead(ctx, "loadStep", 5)
	r.RecordItemWrite(ctx, "loadStep", 15)
	r.RecordChunkCommit(ctx, "loadStep", 10)
	r.RecordChunkCommit(ctx, "loadStep", 5)
	r.RecordChunkRollback(ctx, "loadStep")

	expected := `
# HELP batch_step_commit_total Total chunk commits by step.
# TYPE batch_step_commit_total counter
batch_step_commit_total{step_name="loadStep"} 2
# HELP batch_step_read_total Total items read by step.
# TYPE batch_step_read_total counter
batch_step_read_total{step_name="loadStep"} 15
# HELP batch_step_rollback_total Total chunk rollbacks by step.
# TYPE batch_step_rollback_total counter
batch_step_rollback_total{step_name="loadStep"} 1
# HELP batch_step_write_total Total items written by step.
# TYPE batch_step_write_total counter
batch_step_write_total{step_name="loadStep"} 15
`
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), strings.NewReader(expected),
		"batch_step_commit_total", "batch_step_read_total", "batch_step_rollback_total", "batch_step_write_total"))
}

func TestPrometheusRecorder_JobStatusAndDuration(t *testing.T) {
	r := metrics.NewPrometheusRecorder()
	ctx := context.Background()
	run := test.NewTestJobRun(t, "sync-sales-job", test.NewTestJobParameters(nil))
	require.NoError(t, run.MarkStarted())
	r.RecordJobStart(ctx, run)
	require.NoError(t, run.MarkCompleted())
	r.RecordJobEnd(ctx, run)

	expected := `
# HELP batch_job_status_total Total number of batch job runs by status.
# TYPE batch_job_status_total counter
batch_job_status_total{job_name="sync-sales-job",status="COMPLETED"} 1
batch_job_status_total{job_name="sync-sales-job",status="STARTED"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.GetRegistry(), strings.NewReader(expected), "batch_job_status_total"))

	count, err := testutil.GatherAndCount(r.GetRegistry(), "batch_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusRecorder_StepEndWithoutStartTimeSkipsDuration(t *testing.T) {
	r := metrics.NewPrometheusRecorder()
	step := model.NewStepRun("run-1", "loadStep")
	r.RecordStepEnd(context.Background(), "sync-sales-job", step)

	count, err := testutil.GatherAndCount(r.GetRegistry(), "batch_step_duration_seconds")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPrometheusRecorder_HandlerServesRegistry(t *testing.T) {
	r := metrics.NewPrometheusRecorder()
	r.RecordItemRead(context.Background(), "loadStep", 25)
	r.RecordDuration(context.Background(), "step", 2*time.Second, map[string]string{"job": "sync-sales-job", "step": "loadStep"})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `batch_step_read_total{step_name="loadStep"} 25`)
	assert.Contains(t, string(body), `batch_operation_duration_seconds_count{job_name="sync-sales-job",name="step",step_name="loadStep"} 1`)
}

func TestNewMetricBackend(t *testing.T) {
	t.Run("prometheus exposes a handler", func(t *testing.T) {
		cfg := config.NewConfig()
		rec, exp, err := metrics.NewMetricBackend(fxtest.NewLifecycle(t), cfg)
		require.NoError(t, err)
		assert.IsType(t, &metrics.PrometheusRecorder{}, rec)
		assert.NotNil(t, exp.Handler)
	})

	t.Run("none", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Salesync.Telemetry.Metrics.Backend = metrics.BackendNone
		rec, exp, err := metrics.NewMetricBackend(fxtest.NewLifecycle(t), cfg)
		require.NoError(t, err)
		assert.Equal(t, coremetrics.NewNoOpMetricRecorder(), rec)
		assert.Nil(t, exp.Handler)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Salesync.Telemetry.Metrics.Backend = "statsd"
		_, _, err := metrics.NewMetricBackend(fxtest.NewLifecycle(t), cfg)
		assert.ErrorContains(t, err, "unsupported metrics backend")
	})
}

func TestNewTracer_DisabledIsNoOp(t *testing.T) {
	tracer, err := metrics.NewTracer(fxtest.NewLifecycle(t), config.NewConfig())
	require.NoError(t, err)
	assert.Equal(t, coremetrics.NewNoOpTracer(), tracer)
}
