package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bloomshield/internal/server/config"
)

var (
	// ErrNotConfigured means the storage endpoint URL or access key is missing.
	ErrNotConfigured  = errors.New("storage is not configured")
	ErrAlreadyExists  = errors.New("object already exists")
	ErrObjectNotFound = errors.New("object not found")
)

// Store defines the interface for object storage backends.
// Keys are slash-separated; Put never overwrites an existing object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Object, error)
}

// Object describes a stored blob.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// New builds the store selected by cfg. It fails with ErrNotConfigured
// before any network or disk access when required settings are missing.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	switch cfg.Backend {
	case "filesystem":
		fs := NewFileSystemStore(cfg.Path)
		if err := fs.EnsureDir(); err != nil {
			return nil, err
		}
		return fs, nil
	case "s3", "":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
