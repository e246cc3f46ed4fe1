// Package inmemory provides a map-backed JobRepository for tests and single-process runs.
// Stored values are copied on the way in and out, so callers never alias repository state.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

// JobRepository is an in-memory implementation of repository.JobRepository.
type JobRepository struct {
	mu          sync.RWMutex
	instances   map[string]*model.JobInstance
	runs        map[string]*model.JobRun
	steps       map[string]*model.StepRun
	checkpoints map[string]model.Checkpoint
	// runOrder keeps creation order of runs per instance.
	runOrder map[string][]string
	// stepOrder keeps creation order of steps per job run.
	stepOrder map[string][]string
}

var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates an empty repository.
func NewJobRepository() *JobRepository {
	return &JobRepository{
		instances:   make(map[string]*model.JobInstance),
		runs:        make(map[string]*model.JobRun),
		steps:       make(map[string]*model.StepRun),
		checkpoints: make(map[string]model.Checkpoint),
		runOrder:    make(map[string][]string),
		stepOrder:   make(map[string][]string),
	}
}

func (r *JobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[instance.ID]; ok {
		return fmt.Errorf("job instance %s already exists", instance.ID)
	}
	for _, existing := range r.instances {
		if existing.JobName == instance.JobName && existing.ParamsHash == instance.ParamsHash {
			return fmt.Errorf("job instance for %s with parameters %s already exists", instance.JobName, instance.Parameters)
		}
	}
	c := *instance
	c.Parameters = instance.Parameters.Copy()
	r.instances[c.ID] = &c
	return nil
}

func (r *JobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	c := *inst
	c.Parameters = inst.Parameters.Copy()
	return &c, nil
}

func (r *JobRepository) FindJobInstance(ctx context.Context, jobName, paramsHash string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.JobName == jobName && inst.ParamsHash == paramsHash {
			c := *inst
			c.Parameters = inst.Parameters.Copy()
			return &c, nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

func (r *JobRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.JobInstance
	for _, inst := range r.instances {
		if inst.JobName != jobName {
			continue
		}
		if latest == nil || inst.CreatedAt.After(latest.CreatedAt) {
			latest = inst
		}
	}
	if latest == nil {
		return nil, repository.ErrJobInstanceNotFound
	}
	c := *latest
	c.Parameters = latest.Parameters.Copy()
	return &c, nil
}

func (r *JobRepository) SaveJobRun(ctx context.Context, run *model.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("job run %s already exists", run.ID)
	}
	run.LastUpdated = time.Now()
	r.runs[run.ID] = copyJobRun(run)
	r.runOrder[run.InstanceID] = append(r.runOrder[run.InstanceID], run.ID)
	return nil
}

func (r *JobRepository) UpdateJobRun(ctx context.Context, run *model.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[run.ID]
	if !ok {
		return repository.ErrJobRunNotFound
	}
	if stored.Version != run.Version {
		return exception.NewOptimisticLockingFailure("inmemory", fmt.Sprintf("job run %s: expected version %d, found %d", run.ID, run.Version, stored.Version))
	}
	run.Version++
	run.LastUpdated = time.Now()
	r.runs[run.ID] = copyJobRun(run)
	return nil
}

func (r *JobRepository) FindJobRunByID(ctx context.Context, id string) (*model.JobRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrJobRunNotFound
	}
	return r.withSteps(run), nil
}

func (r *JobRepository) FindLatestJobRun(ctx context.Context, instanceID string) (*model.JobRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.runOrder[instanceID]
	if len(ids) == 0 {
		return nil, repository.ErrJobRunNotFound
	}
	return r.withSteps(r.runs[ids[len(ids)-1]]), nil
}

func (r *JobRepository) FindJobRunsByInstance(ctx context.Context, instanceID string) ([]*model.JobRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.runOrder[instanceID]
	out := make([]*model.JobRun, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyJobRun(r.runs[id]))
	}
	return out, nil
}

func (r *JobRepository) SaveStepRun(ctx context.Context, step *model.StepRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[step.ID]; ok {
		return fmt.Errorf("step run %s already exists", step.ID)
	}
	step.LastUpdated = time.Now()
	r.steps[step.ID] = copyStepRun(step)
	r.stepOrder[step.JobRunID] = append(r.stepOrder[step.JobRunID], step.ID)
	return nil
}

func (r *JobRepository) UpdateStepRun(ctx context.Context, step *model.StepRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.steps[step.ID]
	if !ok {
		return repository.ErrStepRunNotFound
	}
	if stored.Version != step.Version {
		return exception.NewOptimisticLockingFailure("inmemory", fmt.Sprintf("step run %s: expected version %d, found %d", step.ID, step.Version, stored.Version))
	}
	step.Version++
	step.LastUpdated = time.Now()
	r.steps[step.ID] = copyStepRun(step)
	return nil
}

func (r *JobRepository) FindStepRunsByJobRun(ctx context.Context, jobRunID string) ([]*model.StepRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepsOf(jobRunID), nil
}

func (r *JobRepository) SaveCheckpoint(ctx context.Context, stepRunID string, cp model.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[stepRunID] = cp
	return nil
}

func (r *JobRepository) FindCheckpoint(ctx context.Context, stepRunID string) (*model.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp, ok := r.checkpoints[stepRunID]
	if !ok {
		return nil, repository.ErrCheckpointNotFound
	}
	return &cp, nil
}

// Close releases nothing; the repository holds no external resources.
func (r *JobRepository) Close() error {
	return nil
}

// withSteps must be called with r.mu held.
func (r *JobRepository) withSteps(run *model.JobRun) *model.JobRun {
	c := copyJobRun(run)
	c.StepRuns = r.stepsOf(run.ID)
	return c
}

// stepsOf must be called with r.mu held.
func (r *JobRepository) stepsOf(jobRunID string) []*model.StepRun {
	ids := r.stepOrder[jobRunID]
	out := make([]*model.StepRun, 0, len(ids))
	for _, id := range ids {
		s := copyStepRun(r.steps[id])
		if cp, ok := r.checkpoints[id]; ok {
			s.Checkpoint = &cp
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreateTime.Before(out[j].CreateTime) })
	return out
}

func copyJobRun(run *model.JobRun) *model.JobRun {
	c := *run
	c.Parameters = run.Parameters.Copy()
	c.Failures = append(model.FailureList{}, run.Failures...)
	c.StepRuns = nil
	return &c
}

func copyStepRun(step *model.StepRun) *model.StepRun {
	c := *step
	c.Failures = append(model.FailureList{}, step.Failures...)
	if step.Checkpoint != nil {
		cp := *step.Checkpoint
		c.Checkpoint = &cp
	}
	return &c
}
