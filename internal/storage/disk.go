package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore saves uploaded files under a local directory. Default archival
// backend when no S3 storage is configured.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the upload directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes the file and returns its path on disk. The key is flattened to
// its base name so callers cannot escape the upload directory.
func (s *DiskStore) Save(_ context.Context, key string, data []byte, _ string) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}
