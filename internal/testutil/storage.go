package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// StorageRoot returns an empty filesystem object store root holding one
// directory per bucket. It is removed with the test.
func StorageRoot(t *testing.T, buckets ...string) string {
	t.Helper()

	root := t.TempDir()
	for _, b := range buckets {
		if err := os.MkdirAll(filepath.Join(root, b), 0o755); err != nil {
			t.Fatalf("failed to create bucket %s: %v", b, err)
		}
	}
	return root
}

// PlaceFile writes data at root/bucket/key, backdated by age, and returns
// its path. Use it to lay out objects and leftover temp files the way the
// filesystem store would.
func PlaceFile(t *testing.T, root, bucket, key string, data []byte, age time.Duration) string {
	t.Helper()

	path := filepath.Join(root, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if age > 0 {
		at := time.Now().Add(-age)
		if err := os.Chtimes(path, at, at); err != nil {
			t.Fatalf("failed to backdate %s: %v", path, err)
		}
	}
	return path
}
