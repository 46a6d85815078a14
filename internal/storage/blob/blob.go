package blob

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/interfaces"
)

// Snapshot suffixes. Markdown-parsed pages keep their markdown; everything
// else stores the page html.
const (
	SuffixMarkdown = "md"
	SuffixHTML     = "html"
)

// BuildKey composes the canonical snapshot key:
// {job_id}/{dealer_id}_{epoch_ms}.{suffix}
func BuildKey(jobID uuid.UUID, dealerID int64, at time.Time, suffix string) string {
	return fmt.Sprintf("%s/%d_%d.%s", jobID, dealerID, at.UnixMilli(), suffix)
}

// NewStore creates a blob store for the configured backend.
func NewStore(config common.BlobConfig, logger arbor.ILogger) (interfaces.BlobStorage, error) {
	switch config.Backend {
	case "", "filesystem":
		return NewFilesystemStore(config.Path, logger)
	case "badger":
		return NewBadgerStore(config.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s (use 'filesystem' or 'badger')", config.Backend)
	}
}
