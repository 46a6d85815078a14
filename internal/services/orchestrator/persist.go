package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/storage/blob"
)

// persistRows stores the page snapshot, reconciles the parsed rows, and runs
// the absence pass for the dealer under the job's model.
func (s *Service) persistRows(ctx context.Context, job *models.ScrapeJob, dealer *models.Dealer, state *taskState, rows []models.ParsedRow, observedAt time.Time) error {
	blobKey, err := s.snapshot(ctx, job, dealer, state.result, observedAt)
	if err != nil {
		return err
	}

	prepared := s.prepareRows(job, dealer, state, rows, observedAt, blobKey)
	stats, err := s.ingest.IngestRows(ctx, prepared)
	if err != nil {
		return fmt.Errorf("failed to reconcile rows: %w", err)
	}

	observed := make(map[string]bool, len(rows))
	for _, row := range rows {
		if vin := strings.ToUpper(strings.TrimSpace(row.VIN)); vin != "" {
			observed[vin] = true
		}
	}
	missing, sold, err := s.ingest.MarkAbsent(ctx, dealer.ID, job.Model, observed, observedAt)
	if err != nil {
		return fmt.Errorf("failed to reconcile absences: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Int64("dealer_id", dealer.ID).
		Str("backend", state.backend.String()).
		Int("rows", len(rows)).
		Int("observations", stats.Observations).
		Int("price_events", stats.PriceEvents).
		Int("missing", missing).
		Int("sold", sold).
		Msg("Dealer inventory reconciled")

	if stats.PriceEvents > 0 {
		s.publish(ctx, models.EventPriceChanged, map[string]any{
			"job_id":    job.ID.String(),
			"dealer_id": dealer.ID,
			"count":     stats.PriceEvents,
		})
	}
	if sold > 0 {
		s.publish(ctx, models.EventListingsSold, map[string]any{
			"dealer_id": dealer.ID,
			"model":     job.Model,
			"count":     sold,
		})
	}
	return nil
}

// persistEmpty handles a legitimately empty page: snapshot whatever rendered,
// then run the absence pass with nothing observed.
func (s *Service) persistEmpty(ctx context.Context, job *models.ScrapeJob, dealer *models.Dealer, state *taskState, observedAt time.Time) error {
	if _, err := s.snapshot(ctx, job, dealer, state.result, observedAt); err != nil {
		return err
	}

	missing, sold, err := s.ingest.MarkAbsent(ctx, dealer.ID, job.Model, map[string]bool{}, observedAt)
	if err != nil {
		return fmt.Errorf("failed to reconcile absences: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Int64("dealer_id", dealer.ID).
		Int("missing", missing).
		Int("sold", sold).
		Msg("Dealer page had no inventory")

	if sold > 0 {
		s.publish(ctx, models.EventListingsSold, map[string]any{
			"dealer_id": dealer.ID,
			"model":     job.Model,
			"count":     sold,
		})
	}
	return nil
}

// snapshot writes the fetched content to the blob store, preferring markdown
// when the render produced it. Content-less results store nothing and return
// an empty key.
func (s *Service) snapshot(ctx context.Context, job *models.ScrapeJob, dealer *models.Dealer, result *models.FetchResult, observedAt time.Time) (string, error) {
	content := result.BestContent()
	if content == "" {
		return "", nil
	}
	suffix := blob.SuffixHTML
	if result.Markdown != "" {
		suffix = blob.SuffixMarkdown
	}
	key := blob.BuildKey(job.ID, dealer.ID, observedAt, suffix)
	if _, err := s.blobs.PutText(ctx, key, content); err != nil {
		return "", fmt.Errorf("failed to store snapshot: %w", err)
	}
	return key, nil
}

// prepareRows decorates parsed rows into ingest rows: provenance payload,
// list-scrape source rank, and the vehicle attributes the page exposed.
// Rows without a VIN are dropped.
func (s *Service) prepareRows(job *models.ScrapeJob, dealer *models.Dealer, state *taskState, rows []models.ParsedRow, observedAt time.Time, blobKey string) []*models.IngestRow {
	rank := s.config.InventorySourceRank
	if rank <= 0 {
		rank = defaultSourceRank
	}

	prepared := make([]*models.IngestRow, 0, len(rows))
	for _, row := range rows {
		vin := strings.ToUpper(strings.TrimSpace(row.VIN))
		if vin == "" {
			continue
		}

		status := strings.ToLower(row.Status)
		if status == "" {
			status = models.ListingStatusAvailable
		}

		vehicleMake := row.Make
		if vehicleMake == "" {
			vehicleMake = "Toyota"
		}
		vehicleModel := row.Model
		if vehicleModel == "" {
			vehicleModel = job.Model
		}

		rowRank := rank
		prepared = append(prepared, &models.IngestRow{
			DealerID:        dealer.ID,
			VIN:             vin,
			AdvertisedPrice: row.AdvertisedPrice,
			MSRP:            row.MSRP,
			Status:          status,
			VDPURL:          row.VDPURL,
			StockNumber:     row.StockNumber,
			ObservedAt:      observedAt,
			JobID:           job.ID,
			Source:          models.SourceInventoryList,
			SourceRank:      &rowRank,
			Payload: map[string]any{
				"firecrawl": map[string]any{
					"url":     state.url,
					"backend": state.backend.String(),
					"source":  state.result.Source,
				},
			},
			RawBlobKey: blobKey,
			Vehicle: &models.VehicleAttrs{
				Make:          vehicleMake,
				Model:         vehicleModel,
				Year:          row.Year,
				Trim:          row.Trim,
				ExteriorColor: row.ExteriorColor,
				InteriorColor: row.InteriorColor,
				Features:      row.Features,
			},
		})
	}
	return prepared
}
