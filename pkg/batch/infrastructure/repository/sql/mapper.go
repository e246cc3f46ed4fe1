package sql

import (
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:         ji.ID,
		JobName:    ji.JobName,
		Parameters: ji.Parameters,
		ParamsHash: ji.ParamsHash,
		CreateTime: ji.CreatedAt,
		Version:    ji.Version,
	}
}

func toDomainJobInstance(e *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:         e.ID,
		JobName:    e.JobName,
		Parameters: e.Parameters,
		ParamsHash: e.ParamsHash,
		CreatedAt:  e.CreateTime,
		Version:    e.Version,
	}
}

func fromDomainJobRun(r *model.JobRun) *JobRunEntity {
	return &JobRunEntity{
		ID:           r.ID,
		InstanceID:   r.InstanceID,
		JobName:      r.JobName,
		Parameters:   r.Parameters,
		Status:       string(r.Status),
		ExitStatus:   string(r.ExitStatus),
		Context:      r.Context,
		Failures:     r.Failures,
		RestartCount: r.RestartCount,
		CreateTime:   r.CreateTime,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Version:      r.Version,
	}
}

func toDomainJobRun(e *JobRunEntity) *model.JobRun {
	failures := e.Failures
	if failures == nil {
		failures = model.FailureList{}
	}
	return &model.JobRun{
		ID:           e.ID,
		InstanceID:   e.InstanceID,
		JobName:      e.JobName,
		Parameters:   e.Parameters,
		Status:       model.Status(e.Status),
		ExitStatus:   model.ExitStatus(e.ExitStatus),
		Context:      e.Context,
		Failures:     failures,
		RestartCount: e.RestartCount,
		CreateTime:   e.CreateTime,
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		Version:      e.Version,
		LastUpdated:  e.LastUpdated,
	}
}

func fromDomainStepRun(s *model.StepRun) *StepRunEntity {
	return &StepRunEntity{
		ID:          s.ID,
		JobRunID:    s.JobRunID,
		StepName:    s.Name,
		Status:      string(s.Status),
		ExitStatus:  string(s.ExitStatus),
		ReadCount:   s.ReadCount,
		WriteCount:  s.WriteCount,
		CommitCount: s.CommitCount,
		Failures:    s.Failures,
		FailureKind: string(s.FailureKind),
		CreateTime:  s.CreateTime,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Version:     s.Version,
	}
}

func toDomainStepRun(e *StepRunEntity) *model.StepRun {
	failures := e.Failures
	if failures == nil {
		failures = model.FailureList{}
	}
	return &model.StepRun{
		ID:          e.ID,
		JobRunID:    e.JobRunID,
		Name:        e.StepName,
		Status:      model.Status(e.Status),
		ExitStatus:  model.ExitStatus(e.ExitStatus),
		ReadCount:   e.ReadCount,
		WriteCount:  e.WriteCount,
		CommitCount: e.CommitCount,
		Failures:    failures,
		FailureKind: exception.Kind(e.FailureKind),
		CreateTime:  e.CreateTime,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Version:     e.Version,
		LastUpdated: e.LastUpdated,
	}
}
