package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

const fetchModule = "storage.Fetcher"

// Fetcher selects one object of a bucket and downloads it. It makes a single
// attempt; retries are left to the caller.
type Fetcher struct {
	store       ObjectStore
	policy      SelectionPolicy
	downloadDir string
}

// NewFetcher creates a Fetcher downloading into downloadDir (the working directory when empty).
func NewFetcher(store ObjectStore, policy SelectionPolicy, downloadDir string) *Fetcher {
	return &Fetcher{store: store, policy: policy, downloadDir: downloadDir}
}

// FetchLatest downloads the object chosen by the policy into
// <downloadDir>/<subdir>/ and returns its absolute local path. found is false
// when the bucket holds no matching object; that is not an error. Listing and
// transfer failures are FetchErrors.
func (f *Fetcher) FetchLatest(ctx context.Context, bucket, subdir string) (localPath string, found bool, err error) {
	objects, err := f.store.ListObjects(ctx, bucket, f.policy.Prefix())
	if err != nil {
		return "", false, exception.NewFetchError(fetchModule, fmt.Sprintf("failed to list bucket %s", bucket), err)
	}
	obj, ok := f.policy.Select(objects)
	if !ok {
		logger.Infof("No object matching prefix '%s' in bucket %s.", f.policy.Prefix(), bucket)
		return "", false, nil
	}

	dir, err := filepath.Abs(filepath.Join(f.downloadDir, subdir))
	if err != nil {
		return "", false, exception.NewFetchError(fetchModule, "failed to resolve download directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, exception.NewFetchError(fetchModule, "failed to create download directory", err)
	}
	dest := filepath.Join(dir, path.Base(obj.Key))
	if err := f.store.Download(ctx, bucket, obj.Key, dest); err != nil {
		return "", false, exception.NewFetchError(fetchModule, fmt.Sprintf("failed to download %s from bucket %s", obj.Key, bucket), err)
	}
	logger.Debugf("Fetched %s (%d bytes) from bucket %s to %s.", obj.Key, obj.Size, bucket, dest)
	return dest, true, nil
}
