package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

// ErrInvalidTransition is returned when a status change is not allowed by the state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// StepRun is one execution of one step within a JobRun.
type StepRun struct {
	ID          string
	JobRunID    string
	Name        string
	Status      Status
	ExitStatus  ExitStatus
	ReadCount   int64
	WriteCount  int64
	CommitCount int64
	// Checkpoint is the restart data of the last committed chunk, nil before the first commit.
	Checkpoint  *Checkpoint
	Failures    FailureList
	FailureKind exception.Kind
	CreateTime  time.Time
	StartTime   *time.Time
	EndTime     *time.Time
	Version     int
	// LastUpdated is set by the repository on every save.
	LastUpdated time.Time
}

// NewStepRun creates a STARTING step run.
func NewStepRun(jobRunID, name string) *StepRun {
	return &StepRun{
		ID:         NewID(),
		JobRunID:   jobRunID,
		Name:       name,
		Status:     StatusStarting,
		ExitStatus: ExitStatusUnknown,
		Failures:   FailureList{},
		CreateTime: time.Now(),
	}
}

func (s *StepRun) transition(next Status) error {
	if !canTransition(stepTransitions, s.Status, next) {
		return fmt.Errorf("%w: step run %s (%s) cannot move from %s to %s", ErrInvalidTransition, s.Name, s.ID, s.Status, next)
	}
	s.Status = next
	return nil
}

// MarkStarted moves the step to STARTED.
func (s *StepRun) MarkStarted() error {
	if err := s.transition(StatusStarted); err != nil {
		return err
	}
	now := time.Now()
	s.StartTime = &now
	s.EndTime = nil
	s.ExitStatus = ExitStatusExecuting
	return nil
}

// MarkCompleted moves the step to COMPLETED with the given exit status.
func (s *StepRun) MarkCompleted(exit ExitStatus) error {
	return s.finish(StatusCompleted, exit)
}

// MarkFailed moves the step to FAILED and records the error and its kind.
func (s *StepRun) MarkFailed(err error) error {
	if err != nil {
		s.Failures = appendFailure(s.Failures, err)
		s.FailureKind = exception.KindOf(err)
	}
	return s.finish(StatusFailed, ExitStatusFailed)
}

// MarkStopping records a stop request for the running step.
func (s *StepRun) MarkStopping() error {
	return s.transition(StatusStopping)
}

// MarkStopped moves the step to STOPPED.
func (s *StepRun) MarkStopped() error {
	return s.finish(StatusStopped, ExitStatusStopped)
}

func (s *StepRun) finish(status Status, exit ExitStatus) error {
	if err := s.transition(status); err != nil {
		return err
	}
	now := time.Now()
	s.EndTime = &now
	s.ExitStatus = exit
	return nil
}

// ApplyCheckpoint restores the counters saved in cp.
func (s *StepRun) ApplyCheckpoint(cp Checkpoint) {
	c := cp
	s.Checkpoint = &c
	s.ReadCount = cp.ReadCount
	s.WriteCount = cp.WriteCount
	s.CommitCount = cp.CommitCount
}

// CopyForRestart creates the step run used by a restarted JobRun.
// A COMPLETED step keeps its outcome and is skipped by the runner.
// Any other step is reset to STARTING; its checkpoint is kept so the
// load step resumes after the last committed chunk.
func (s *StepRun) CopyForRestart(newJobRunID string) *StepRun {
	c := NewStepRun(newJobRunID, s.Name)
	if s.Checkpoint != nil {
		cp := *s.Checkpoint
		c.Checkpoint = &cp
	}
	if s.Status == StatusCompleted {
		c.Status = StatusCompleted
		c.ExitStatus = s.ExitStatus
		c.StartTime = s.StartTime
		c.EndTime = s.EndTime
		c.ReadCount = s.ReadCount
		c.WriteCount = s.WriteCount
		c.CommitCount = s.CommitCount
	}
	return c
}

// Clone returns a deep copy of the step run.
func (s *StepRun) Clone() *StepRun {
	c := *s
	c.Failures = append(FailureList{}, s.Failures...)
	if s.Checkpoint != nil {
		cp := *s.Checkpoint
		c.Checkpoint = &cp
	}
	return &c
}
