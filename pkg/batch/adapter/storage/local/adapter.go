// Package local implements the object store over a directory tree: each bucket
// is a subdirectory of the base directory and keys are slash-separated paths.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tigerroll/salesync/pkg/batch/adapter/storage"
	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// Type is the storage.type value selecting this adapter.
const Type = "local"

func init() {
	storage.RegisterStore(Type, func(_ context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
		return NewStore(cfg.Local.BaseDir)
	})
}

// Store is a directory-backed storage.ObjectStore.
type Store struct {
	baseDir string
}

var _ storage.ObjectStore = (*Store)(nil)

// NewStore creates the store, creating baseDir when missing.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local object store: base_dir must be specified")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local object store: failed to create base_dir '%s': %w", baseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local object store: failed to stat base_dir '%s': %w", baseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local object store: base_dir '%s' is not a directory", baseDir)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &Store{baseDir: abs}, nil
}

// ListObjects walks the bucket directory. A missing bucket is an error.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	root, err := s.resolvePath(bucket, "")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("bucket '%s': %w", bucket, err)
	}

	var out []storage.ObjectInfo
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket '%s' with prefix '%s': %w", bucket, prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Download copies the object through a temporary file renamed over dest.
func (s *Store) Download(ctx context.Context, bucket, key, dest string) error {
	src, err := s.resolvePath(bucket, key)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open object '%s': %w", key, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for '%s': %w", dest, err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy object '%s': %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move object '%s' to '%s': %w", key, dest, err)
	}
	logger.Debugf("Copied '%s' to '%s' (local store).", src, dest)
	return nil
}

func (s *Store) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	dest, err := s.resolvePath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", key, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create object '%s': %w", key, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write object '%s': %w", key, err)
	}
	return f.Close()
}

func (s *Store) Close() error { return nil }

// resolvePath rejects keys escaping the base directory.
func (s *Store) resolvePath(bucket, key string) (string, error) {
	full := filepath.Join(s.baseDir, bucket, filepath.FromSlash(key))
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", full, s.baseDir)
	}
	return full, nil
}
