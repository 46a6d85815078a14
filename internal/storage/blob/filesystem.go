package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
)

// FilesystemStore writes page snapshots under a root directory, one file per
// key. Keys carry a job-id directory segment so snapshots group by job.
type FilesystemStore struct {
	root   string
	logger arbor.ILogger
}

// NewFilesystemStore creates the root directory if needed.
func NewFilesystemStore(root string, logger arbor.ILogger) (interfaces.BlobStorage, error) {
	if root == "" {
		root = "./data/blobs"
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", root, err)
	}

	logger.Debug().Str("path", root).Msg("Filesystem blob store initialized")

	return &FilesystemStore{root: root, logger: logger}, nil
}

// PutText stores content under key and returns the key.
func (s *FilesystemStore) PutText(ctx context.Context, key, content string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob subdirectory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return key, nil
}

// GetText reads the content stored under key.
func (s *FilesystemStore) GetText(ctx context.Context, key string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return string(data), nil
}

// Close is a no-op for the filesystem backend.
func (s *FilesystemStore) Close() error {
	return nil
}
