package test

import (
	"testing"

	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
)

// NewTestJobParameters builds JobParameters from a map.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestJobRun creates an instance and a STARTING run of jobName.
func NewTestJobRun(t *testing.T, jobName string, params model.JobParameters) *model.JobRun {
	t.Helper()
	inst, err := model.NewJobInstance(jobName, params)
	require.NoError(t, err)
	return model.NewJobRun(inst)
}
