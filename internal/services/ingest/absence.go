package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// MarkAbsent applies the two-miss rule after a completed dealer and model
// scrape. A listing not observed this cycle goes missing; a listing
// already missing goes sold; sold listings never change again. Only
// listings written by list scrapes (source rank at or below the inventory
// rank, or unranked legacy rows) are candidates, so upload- and
// import-origin listings survive scrape absences untouched.
func (s *Service) MarkAbsent(ctx context.Context, dealerID int64, model string, observedVINs map[string]bool, observedAt time.Time) (int, int, error) {
	var missing, sold int

	err := s.store.InTx(ctx, func(tx interfaces.IngestTx) error {
		missing, sold = 0, 0

		candidates, err := tx.ListAbsenceCandidates(ctx, dealerID, model, s.inventoryRank)
		if err != nil {
			return err
		}

		for _, listing := range candidates {
			if observedVINs[strings.ToUpper(listing.VIN)] {
				continue
			}

			switch strings.ToLower(listing.Status) {
			case models.ListingStatusSold:
				continue
			case models.ListingStatusMissing:
				listing.Status = models.ListingStatusSold
				if listing.LastSeenAt == nil {
					at := observedAt.UTC()
					listing.LastSeenAt = &at
				}
				sold++
			default:
				listing.Status = models.ListingStatusMissing
				missing++
			}

			if err := tx.PutListing(ctx, listing); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if missing > 0 || sold > 0 {
		s.logger.Info().
			Int64("dealer_id", dealerID).
			Str("model", model).
			Int("marked_missing", missing).
			Int("marked_sold", sold).
			Msg("Absence pass updated listings")
	}

	return missing, sold, nil
}
