// Package incrementer derives job parameters for a fresh job instance.
package incrementer

import (
	"fmt"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter incremented by default.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer sets the run id parameter to 1, or increments it when present.
type RunIDIncrementer struct {
	key string
}

var _ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)

// NewRunIDIncrementer returns an incrementer for key; an empty key means DefaultRunIDKey.
func NewRunIDIncrementer(key string) *RunIDIncrementer {
	if key == "" {
		key = DefaultRunIDKey
	}
	return &RunIDIncrementer{key: key}
}

// GetNext returns a copy of params with the run id advanced.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := params.Copy()
	current, ok := params.GetInt64(i.key)
	if !ok {
		next.Put(i.key, int64(1))
		logger.Debugf("RunIDIncrementer: '%s' not set, starting at 1.", i.key)
		return next
	}
	next.Put(i.key, current+1)
	logger.Debugf("RunIDIncrementer: '%s' %d -> %d.", i.key, current, current+1)
	return next
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[key=%s]", i.key)
}
