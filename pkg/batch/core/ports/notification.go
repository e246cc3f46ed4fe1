// Package ports declares outbound integrations of the batch engine.
package ports

import (
	"context"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

// Notifier tells external systems that a job run reached a terminal status.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, run *model.JobRun) error
}
