package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/salesync/pkg/batch/core/metrics"
	logger "github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// It owns a private registry so that several recorders can coexist in tests.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job Metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	// Step Metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec

	// Chunk Metrics
	itemReadCount      *prometheus.CounterVec
	itemWriteCount     *prometheus.CounterVec
	chunkCommitCount   *prometheus.CounterVec
	chunkRollbackCount *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job runs by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step runs by status.",
		}, []string{"job_name", "step_name", "status"}),
		itemReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"step_name"}),
		itemWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"step_name"}),
		chunkCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"step_name"}),
		chunkRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_rollback_total",
			Help: "Total chunk rollbacks by step.",
		}, []string{"step_name"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named batch operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "job_name", "step_name"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.itemReadCount,
		r.itemWriteCount,
		r.chunkCommitCount,
		r.chunkRollbackCount,
		r.operationDurationSeconds,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordJobStart records the start of a JobRun.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, run *model.JobRun) {
	r.jobStatusCounter.WithLabelValues(run.JobName, run.Status.String()).Inc()
	logger.Debugf("Metrics: Job '%s' started.", run.JobName)
}

// RecordJobEnd records the end of a JobRun.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, run *model.JobRun) {
	r.jobStatusCounter.WithLabelValues(run.JobName, run.Status.String()).Inc()
	if run.StartTime == nil || run.EndTime == nil {
		return
	}
	duration := run.EndTime.Sub(*run.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(run.JobName, run.Status.String(), run.ExitStatus.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", run.JobName, duration)
}

// RecordStepStart records the start of a StepRun.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, jobName string, step *model.StepRun) {
	r.stepStatusCounter.WithLabelValues(jobName, step.Name, step.Status.String()).Inc()
	logger.Debugf("Metrics: Step '%s' started.", step.Name)
}

// RecordStepEnd records the end of a StepRun. Item counts are recorded per chunk, not here.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, jobName string, step *model.StepRun) {
	r.stepStatusCounter.WithLabelValues(jobName, step.Name, step.Status.String()).Inc()
	if step.StartTime == nil || step.EndTime == nil {
		return
	}
	duration := step.EndTime.Sub(*step.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(jobName, step.Name, step.Status.String(), step.ExitStatus.String()).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", step.Name, duration)
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemReadCount.WithLabelValues(stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemWriteCount.WithLabelValues(stepName).Add(float64(count))
}

// RecordChunkCommit counts one commit regardless of the chunk size.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommitCount.WithLabelValues(stepName).Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunkRollbackCount.WithLabelValues(stepName).Inc()
}

// RecordDuration observes duration under name. The "job" and "step" tags become labels; other tags are ignored.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name, tags["job"], tags["step"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
