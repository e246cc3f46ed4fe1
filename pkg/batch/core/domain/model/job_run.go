package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is the logical identity of a job: its name plus the hash of its parameters.
type JobInstance struct {
	ID         string
	JobName    string
	Parameters JobParameters
	ParamsHash string
	CreatedAt  time.Time
	Version    int
}

// NewJobInstance creates an instance for the given name and parameters.
func NewJobInstance(jobName string, params JobParameters) (*JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}
	return &JobInstance{
		ID:         NewID(),
		JobName:    jobName,
		Parameters: params,
		ParamsHash: hash,
		CreatedAt:  time.Now(),
	}, nil
}

// JobRun is one physical execution of a job instance.
type JobRun struct {
	ID           string
	InstanceID   string
	JobName      string
	Parameters   JobParameters
	Status       Status
	ExitStatus   ExitStatus
	Context      JobContext
	CreateTime   time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	Failures     FailureList
	RestartCount int
	Version      int
	// LastUpdated is set by the repository on every save.
	LastUpdated  time.Time

	// StepRuns is loaded alongside the run; it is not part of the run row.
	StepRuns []*StepRun
}

// NewJobRun creates a STARTING run for the instance.
func NewJobRun(instance *JobInstance) *JobRun {
	return &JobRun{
		ID:         NewID(),
		InstanceID: instance.ID,
		JobName:    instance.JobName,
		Parameters: instance.Parameters,
		Status:     StatusStarting,
		ExitStatus: ExitStatusUnknown,
		Context:    NewJobContext(),
		CreateTime: time.Now(),
		Failures:   FailureList{},
	}
}

func (r *JobRun) transition(next Status) error {
	if !canTransition(jobTransitions, r.Status, next) {
		return fmt.Errorf("%w: job run %s cannot move from %s to %s", ErrInvalidTransition, r.ID, r.Status, next)
	}
	r.Status = next
	return nil
}

// MarkStarted moves the run to STARTED.
func (r *JobRun) MarkStarted() error {
	if err := r.transition(StatusStarted); err != nil {
		return err
	}
	now := time.Now()
	r.StartTime = &now
	r.ExitStatus = ExitStatusExecuting
	return nil
}

// MarkCompleted moves the run to COMPLETED.
func (r *JobRun) MarkCompleted() error {
	return r.finish(StatusCompleted, ExitStatusCompleted)
}

// MarkFailed moves the run to FAILED and records the error.
func (r *JobRun) MarkFailed(err error) error {
	if err != nil {
		r.AddFailure(err)
	}
	return r.finish(StatusFailed, ExitStatusFailed)
}

// MarkStopping records a stop request. The run stops at the next chunk or step boundary.
// A STARTING run may be asked to stop before its executor marks it STARTED.
func (r *JobRun) MarkStopping() error {
	return r.transition(StatusStopping)
}

// MarkStopped moves the run to STOPPED.
func (r *JobRun) MarkStopped() error {
	return r.finish(StatusStopped, ExitStatusStopped)
}

// MarkAbandoned marks a FAILED or STOPPED run as never to be resumed.
func (r *JobRun) MarkAbandoned() error {
	return r.transition(StatusAbandoned)
}

func (r *JobRun) finish(status Status, exit ExitStatus) error {
	if err := r.transition(status); err != nil {
		return err
	}
	now := time.Now()
	r.EndTime = &now
	r.ExitStatus = exit
	return nil
}

// AddFailure appends the error message unless it is already recorded.
func (r *JobRun) AddFailure(err error) {
	r.Failures = appendFailure(r.Failures, err)
}

// StepRun returns the run's step with the given name, or nil.
func (r *JobRun) StepRun(name string) *StepRun {
	for _, s := range r.StepRuns {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// RunSummary is the operator-facing outcome of a run.
type RunSummary struct {
	Status     Status         `json:"status"`
	FailedStep string         `json:"failed_step,omitempty"`
	ErrorKind  exception.Kind `json:"error_kind,omitempty"`
	// CommittedRows is the number of rows durably written by the load step.
	CommittedRows int64 `json:"committed_rows"`
}

// Summary reports the failing step, its error kind and the rows committed so far.
func (r *JobRun) Summary() RunSummary {
	s := RunSummary{Status: r.Status}
	for _, step := range r.StepRuns {
		s.CommittedRows += step.WriteCount
		if s.FailedStep == "" && (step.Status == StatusFailed || step.Status == StatusStopped) {
			s.FailedStep = step.Name
			s.ErrorKind = step.FailureKind
		}
	}
	return s
}

func appendFailure(list FailureList, err error) FailureList {
	msg := err.Error()
	for _, m := range list {
		if m == msg {
			return list
		}
	}
	return append(list, msg)
}

// Clone returns a deep copy of the run and its step runs.
func (r *JobRun) Clone() *JobRun {
	c := *r
	c.Parameters = r.Parameters.Copy()
	c.Failures = append(FailureList{}, r.Failures...)
	c.StepRuns = make([]*StepRun, 0, len(r.StepRuns))
	for _, s := range r.StepRuns {
		c.StepRuns = append(c.StepRuns, s.Clone())
	}
	return &c
}
