package incrementer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/support/incrementer"
)

func TestRunIDIncrementer_GetNext(t *testing.T) {
	inc := incrementer.NewRunIDIncrementer("")

	params := model.NewJobParameters()
	params.Put("bucket", "sales")

	first := inc.GetNext(params)
	id, ok := first.GetInt64("run.id")
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	bucket, _ := first.GetString("bucket")
	assert.Equal(t, "sales", bucket)

	_, present := params.GetInt64("run.id")
	assert.False(t, present, "input parameters must not be modified")

	second := inc.GetNext(first)
	id, _ = second.GetInt64("run.id")
	assert.Equal(t, int64(2), id)
}
