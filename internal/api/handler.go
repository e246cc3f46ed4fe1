// Package api exposes job submission and inspection over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tigerroll/salesync/internal/job"
	"github.com/tigerroll/salesync/internal/sales/fetch"
	"github.com/tigerroll/salesync/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// JobService is the part of the JobController the API drives.
type JobService interface {
	Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobRun, error)
	Status(ctx context.Context, jobRunID string) (*model.JobRun, error)
	Stop(ctx context.Context, jobRunID string) error
	NextParameters(ctx context.Context, jobName string, params model.JobParameters) (model.JobParameters, error)
}

var _ JobService = (*usecase.JobController)(nil)

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	// Job defaults to the sync job.
	Job    string `json:"job"`
	Bucket string `json:"bucket"`
	// RunID addresses a job instance; resubmitting the run_id of a failed run restarts it.
	// Zero starts a fresh instance.
	RunID int64 `json:"run_id"`
}

// StepResponse is the JSON view of a StepRun.
type StepResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Status      model.Status     `json:"status"`
	ExitStatus  model.ExitStatus `json:"exit_status"`
	ReadCount   int64            `json:"read_count"`
	WriteCount  int64            `json:"write_count"`
	CommitCount int64            `json:"commit_count"`
	Failures    []string         `json:"failures,omitempty"`
	StartTime   *time.Time       `json:"start_time,omitempty"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
}

// RunResponse is the JSON view of a JobRun.
type RunResponse struct {
	ID            string                 `json:"id"`
	JobName       string                 `json:"job_name"`
	Parameters    map[string]interface{} `json:"parameters"`
	Status        model.Status           `json:"status"`
	ExitStatus    model.ExitStatus       `json:"exit_status"`
	InputFilePath string                 `json:"input_file_path,omitempty"`
	RestartCount  int                    `json:"restart_count"`
	Failures      []string               `json:"failures,omitempty"`
	StartTime     *time.Time             `json:"start_time,omitempty"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	Steps         []StepResponse         `json:"steps"`
	Summary       model.RunSummary       `json:"summary"`
}

// NewRunResponse converts run.
func NewRunResponse(run *model.JobRun) RunResponse {
	resp := RunResponse{
		ID:           run.ID,
		JobName:      run.JobName,
		Parameters:   run.Parameters.Params,
		Status:       run.Status,
		ExitStatus:   run.ExitStatus,
		RestartCount: run.RestartCount,
		Failures:     run.Failures,
		StartTime:    run.StartTime,
		EndTime:      run.EndTime,
		Steps:        make([]StepResponse, 0, len(run.StepRuns)),
		Summary:      run.Summary(),
	}
	if p, ok := run.Context.InputFilePath(); ok {
		resp.InputFilePath = p
	}
	for _, s := range run.StepRuns {
		resp.Steps = append(resp.Steps, StepResponse{
			ID:          s.ID,
			Name:        s.Name,
			Status:      s.Status,
			ExitStatus:  s.ExitStatus,
			ReadCount:   s.ReadCount,
			WriteCount:  s.WriteCount,
			CommitCount: s.CommitCount,
			Failures:    s.Failures,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
		})
	}
	return resp
}

// JobHandler serves the /jobs routes.
type JobHandler struct {
	service        JobService
	defaultJobName string
}

// NewJobHandler creates a handler submitting defaultJobName when a request names no job.
func NewJobHandler(service JobService, defaultJobName string) *JobHandler {
	return &JobHandler{service: service, defaultJobName: defaultJobName}
}

// Submit starts a run in the background and answers 202 with its snapshot.
func (h *JobHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	jobName := req.Job
	if jobName == "" {
		jobName = h.defaultJobName
	}

	params := model.NewJobParameters()
	if req.Bucket != "" {
		params.Put(fetch.BucketParam, req.Bucket)
	}
	ctx := c.Request.Context()
	if req.RunID > 0 {
		params.Put(job.RunIDParam, req.RunID)
	} else {
		next, err := h.service.NextParameters(ctx, jobName, params)
		if err != nil {
			h.fail(c, err)
			return
		}
		params = next
	}

	run, err := h.service.Start(ctx, jobName, params)
	if err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("API: started job run %s of '%s' with parameters %s.", run.ID, jobName, params)
	c.JSON(http.StatusAccepted, NewRunResponse(run))
}

// Get answers the run with its steps and summary.
func (h *JobHandler) Get(c *gin.Context) {
	run, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRunResponse(run))
}

// Stop requests a stop at the next chunk boundary.
func (h *JobHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Stop(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": model.StatusStopping})
}

func (h *JobHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrJobRunNotFound), errors.Is(err, usecase.ErrJobNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrJobRunNotRunning),
		errors.Is(err, usecase.ErrJobRunAlreadyRunning),
		errors.Is(err, usecase.ErrJobInstanceAlreadyComplete):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("API: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
