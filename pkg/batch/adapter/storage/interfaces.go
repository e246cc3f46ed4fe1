// Package storage abstracts the object store holding the sales datasets and
// implements the selection and download of the dataset to ingest.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the subset of object storage operations the jobs need.
type ObjectStore interface {
	// ListObjects returns every object of bucket whose key starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// Download writes the object to the local file dest, replacing it.
	Download(ctx context.Context, bucket, key, dest string) error
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
	Close() error
}

// SelectionPolicy chooses at most one object among a listing.
type SelectionPolicy interface {
	// Prefix narrows the listing before Select is applied.
	Prefix() string
	Select(objects []ObjectInfo) (ObjectInfo, bool)
}
