package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/lotwatch/internal/models"
)

// IngestService folds normalized rows into vehicles, listings, observations
// and price events.
type IngestService interface {
	// IngestRows reconciles a batch atomically and returns counters.
	IngestRows(ctx context.Context, rows []*models.IngestRow) (*models.IngestStats, error)

	// MarkAbsent applies the two-miss sold rule for one dealer and model
	// after a completed scrape. Returns how many listings were marked
	// missing and sold.
	MarkAbsent(ctx context.Context, dealerID int64, model string, observedVINs map[string]bool, observedAt time.Time) (missing, sold int, err error)
}
