// Package fetch implements the first step of the sync job: downloading the dataset to ingest.
package fetch

import (
	"context"
	"os"
	"path/filepath"

	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// BucketParam is the job parameter naming the bucket to fetch from.
const BucketParam = "bucket"

// Fetcher downloads the object selected for a bucket into a subdirectory of its download directory.
type Fetcher interface {
	FetchLatest(ctx context.Context, bucket, subdir string) (localPath string, found bool, err error)
}

// DownloadFileTasklet fetches one object and publishes its local path in the
// job context. Each job instance downloads into its own directory, named by
// the instance id, so runs of other instances never replace its file.
type DownloadFileTasklet struct {
	fetcher       Fetcher
	defaultBucket string
}

var (
	_ port.Tasklet          = (*DownloadFileTasklet)(nil)
	_ port.RestartValidator = (*DownloadFileTasklet)(nil)
)

// NewDownloadFileTasklet creates the tasklet. defaultBucket is used when the
// run has no "bucket" parameter.
func NewDownloadFileTasklet(fetcher Fetcher, defaultBucket string) *DownloadFileTasklet {
	return &DownloadFileTasklet{fetcher: fetcher, defaultBucket: defaultBucket}
}

// Execute downloads the dataset. An empty bucket is not a failure: the step
// ends with exit status NOOP and the job context keeps no input path.
func (t *DownloadFileTasklet) Execute(ctx context.Context, jobRun *model.JobRun, stepRun *model.StepRun) (model.ExitStatus, error) {
	bucket := t.defaultBucket
	if b, ok := jobRun.Parameters.GetString(BucketParam); ok && b != "" {
		bucket = b
	}
	if bucket == "" {
		return model.ExitStatusFailed, exception.NewFetchError("fetch.DownloadFileTasklet", "no bucket configured", nil)
	}

	path, found, err := t.fetcher.FetchLatest(ctx, bucket, jobRun.InstanceID)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if !found {
		jobRun.Context.ClearInputFilePath()
		logger.Warnf("No file to download from bucket %s.", bucket)
		return model.ExitStatusNoop, nil
	}
	jobRun.Context.SetInputFilePath(path)
	logger.Infof("File: %s downloaded successfully from bucket %s", filepath.Base(path), bucket)
	return model.ExitStatusCompleted, nil
}

// CanSkipOnRestart reports whether the previously downloaded file is still on
// disk in the directory of run's job instance.
func (t *DownloadFileTasklet) CanSkipOnRestart(run *model.JobRun) bool {
	path, ok := run.Context.InputFilePath()
	if !ok || run.InstanceID == "" || filepath.Base(filepath.Dir(path)) != run.InstanceID {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
