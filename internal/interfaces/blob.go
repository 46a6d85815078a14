package interfaces

import "context"

// BlobStorage - append-only store for raw page snapshots. Keys carry path
// segments, e.g. "{job_id}/{dealer_id}_{epoch_ms}.html".
type BlobStorage interface {
	// PutText stores content under key and returns the key.
	PutText(ctx context.Context, key, content string) (string, error)
	GetText(ctx context.Context, key string) (string, error)
	Close() error
}
