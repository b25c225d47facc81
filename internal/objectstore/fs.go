package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps objects as files under <root>/<bucket>/<key>.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("filesystem store: empty root")
	}
	if err := EnsureDir(root); err != nil {
		return nil, fmt.Errorf("filesystem store: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the base directory.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(bucket, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if err := checkKey(bucket); err != nil {
		return "", err
	}
	base := filepath.Join(s.root, bucket)
	p := filepath.Join(base, filepath.FromSlash(key))
	if !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes bucket", ErrInvalidKey, key)
	}
	return p, nil
}

func (s *FSStore) Put(ctx context.Context, bucket, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return opError("put", bucket, key, err)
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return opError("put", bucket, key, err)
	}
	return opError("put", bucket, key, AtomicWrite(p, bytes.NewReader(data)))
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("get", bucket, key, err)
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, opError("get", bucket, key, err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err != nil {
		return nil, opError("get", bucket, key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return opError("delete", bucket, key, err)
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return opError("delete", bucket, key, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return opError("delete", bucket, key, err)
	}
	return nil
}
