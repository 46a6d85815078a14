package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
)

// BadgerStore keeps page snapshots in an embedded Badger database. Useful
// for single-binary deployments where a directory tree of snapshots is
// unwanted.
type BadgerStore struct {
	db     *badger.DB
	logger arbor.ILogger
}

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(path string, logger arbor.ILogger) (interfaces.BlobStorage, error) {
	if path == "" {
		path = "./data/blobs.badger"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob database directory: %w", err)
	}

	options := badger.DefaultOptions(path)
	options.Logger = nil // arbor handles logging

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Msg("Badger blob store initialized")

	return &BadgerStore{db: db, logger: logger}, nil
}

// PutText stores content under key and returns the key.
func (s *BadgerStore) PutText(ctx context.Context, key, content string) (string, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(content))
	})
	if err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return key, nil
}

// GetText reads the content stored under key.
func (s *BadgerStore) GetText(ctx context.Context, key string) (string, error) {
	var content string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			content = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return content, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
