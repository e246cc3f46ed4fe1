// Package model holds the persisted state of the batch engine: job instances, job runs,
// step runs, the typed job context and load-step checkpoints.
package model

// Status is the lifecycle status shared by JobRun and StepRun.
type Status string

const (
	StatusStarting  Status = "STARTING"
	StatusStarted   Status = "STARTED"
	StatusStopping  Status = "STOPPING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusStopped   Status = "STOPPED"
	StatusAbandoned Status = "ABANDONED"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further work happens under this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped, StatusAbandoned:
		return true
	default:
		return false
	}
}

// IsRestartable reports whether a run ending in this status may be resumed.
func (s Status) IsRestartable() bool {
	return s == StatusFailed || s == StatusStopped
}

// ExitStatus describes how a run or step ended.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	// ExitStatusNoop marks a step that finished without doing any work.
	ExitStatusNoop    ExitStatus = "NOOP"
	ExitStatusFailed  ExitStatus = "FAILED"
	ExitStatusStopped ExitStatus = "STOPPED"
)

func (s ExitStatus) String() string {
	return string(s)
}

var stepTransitions = map[Status][]Status{
	StatusStarting: {StatusStarted, StatusFailed, StatusAbandoned},
	StatusStarted:  {StatusCompleted, StatusFailed, StatusStopping, StatusStopped},
	StatusStopping: {StatusStopped, StatusFailed, StatusCompleted},
	StatusFailed:   {StatusAbandoned},
	StatusStopped:  {StatusAbandoned},
}

var jobTransitions = map[Status][]Status{
	StatusStarting: {StatusStarted, StatusFailed, StatusStopping, StatusStopped, StatusAbandoned},
	StatusStarted:  {StatusCompleted, StatusFailed, StatusStopping, StatusStopped},
	StatusStopping: {StatusStopped, StatusFailed, StatusCompleted},
	StatusFailed:   {StatusAbandoned},
	StatusStopped:  {StatusAbandoned},
}

func canTransition(table map[Status][]Status, from, to Status) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}
