// Package objectstore is the boundary to remote object storage. Photos are
// written as whole objects addressed by bucket and key.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/config"
)

var (
	ErrStorageWrite  = errors.New("storage write failed")
	ErrStorageRead   = errors.New("storage read failed")
	ErrStorageDelete = errors.New("storage delete failed")
	ErrNotFound      = errors.New("object not found")
	ErrInvalidKey    = errors.New("invalid object key")
)

// Store puts, gets and deletes whole objects. Delete of a missing object
// succeeds.
type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

// StorageError records the operation and object that failed. It matches
// ErrStorageWrite, ErrStorageRead or ErrStorageDelete depending on Op, as
// well as the underlying cause.
type StorageError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

func (e *StorageError) kind() error {
	switch e.Op {
	case "put":
		return ErrStorageWrite
	case "get":
		return ErrStorageRead
	default:
		return ErrStorageDelete
	}
}

func opError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Bucket: bucket, Key: key, Err: err}
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client), nil
	case "filesystem":
		return NewFSStore(cfg.DataDir)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
