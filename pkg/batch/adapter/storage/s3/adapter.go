// Package s3 implements the object store over any S3-compatible endpoint with minio-go.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tigerroll/salesync/pkg/batch/adapter/storage"
	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
)

// Type is the storage.type value selecting this adapter.
const Type = "s3"

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "s3.amazonaws.com"

func init() {
	storage.RegisterStore(Type, func(_ context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
		return NewStore(cfg.S3)
	})
}

// Store is a minio-go backed storage.ObjectStore.
type Store struct {
	client *minio.Client
}

var _ storage.ObjectStore = (*Store)(nil)

// NewStore creates the client. Static keys are used when configured, the
// AWS_* environment variables otherwise.
func NewStore(cfg config.S3Config) (*Store, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client for %s: %w", endpoint, err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *minio.Client) *Store {
	return &Store{client: client}
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, obj.Err)
		}
		out = append(out, storage.ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

// Download uses FGetObject, which writes a ".part.minio" file and renames it over dest.
func (s *Store) Download(ctx context.Context, bucket, key, dest string) error {
	if err := s.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if _, err := s.client.PutObject(ctx, bucket, key, r, -1, minio.PutObjectOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close is a no-op; the client holds only pooled HTTP connections.
func (s *Store) Close() error { return nil }
