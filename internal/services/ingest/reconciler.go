package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// pctScale is the intermediate precision for price-change percentages
// before the final round to two places.
const pctScale = 4

// Service folds normalized ingest rows into vehicles, listings,
// observations and price events. Each batch runs in one store transaction.
type Service struct {
	store         interfaces.IngestStorage
	inventoryRank int
	logger        arbor.ILogger
}

// NewService creates the ingest reconciler. inventoryRank is the trust
// ceiling used when selecting absence candidates.
func NewService(store interfaces.IngestStorage, inventoryRank int, logger arbor.ILogger) interfaces.IngestService {
	if inventoryRank <= 0 {
		inventoryRank = 50
	}
	return &Service{
		store:         store,
		inventoryRank: inventoryRank,
		logger:        logger,
	}
}

// IngestRows reconciles one batch atomically. An error on any row rolls
// the whole batch back.
func (s *Service) IngestRows(ctx context.Context, rows []*models.IngestRow) (*models.IngestStats, error) {
	stats := &models.IngestStats{}
	if len(rows) == 0 {
		return stats, nil
	}

	err := s.store.InTx(ctx, func(tx interfaces.IngestTx) error {
		for _, row := range rows {
			if err := s.reconcileRow(ctx, tx, row, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("observations", stats.Observations).
		Int("listings", stats.ListingsUpserted).
		Int("price_events", stats.PriceEvents).
		Msg("Reconcile batch committed")

	return stats, nil
}

func (s *Service) reconcileRow(ctx context.Context, tx interfaces.IngestTx, row *models.IngestRow, stats *models.IngestStats) error {
	vin := strings.ToUpper(strings.TrimSpace(row.VIN))
	if vin == "" {
		return fmt.Errorf("ingest row for dealer %d has no vin", row.DealerID)
	}

	observedAt := row.ObservedAt.UTC()
	if row.ObservedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	vehicle, err := tx.GetVehicle(ctx, vin)
	if err != nil {
		return err
	}
	if vehicle == nil {
		vehicle = &models.Vehicle{VIN: vin}
	}
	mergeVehicle(vehicle, row.Vehicle)
	if err := tx.UpsertVehicle(ctx, vehicle); err != nil {
		return err
	}

	// Advertised price falls back to MSRP, flagged so consumers can tell
	// an assumed price from a quoted one.
	advertised := row.AdvertisedPrice
	payload := row.Payload
	if advertised == nil && row.MSRP != nil {
		advertised = row.MSRP
		payload = withMSRPAssumption(payload)
	}

	source := row.Source
	if source == "" {
		source = models.SourceInventoryList
	}

	obs := &models.Observation{
		JobID:      row.JobID,
		ObservedAt: observedAt,
		DealerID:   row.DealerID,
		VIN:        vin,
		VDPURL:     row.VDPURL,
		Advertised: advertised,
		MSRP:       row.MSRP,
		Payload:    payload,
		RawBlobKey: row.RawBlobKey,
		Source:     source,
	}
	if err := tx.InsertObservation(ctx, obs); err != nil {
		return err
	}
	stats.Observations++

	status := row.Status
	if status == "" {
		status = models.ListingStatusAvailable
	}

	firstSeen := observedAt
	if row.FirstSeenAt != nil {
		firstSeen = row.FirstSeenAt.UTC()
	}
	lastSeen := observedAt
	if row.LastSeenAt != nil {
		lastSeen = row.LastSeenAt.UTC()
	}

	effectiveMSRP := row.MSRP
	if effectiveMSRP == nil {
		effectiveMSRP = vehicle.MSRP
	}

	listing, err := tx.GetListing(ctx, row.DealerID, vin)
	if err != nil {
		return err
	}

	if listing == nil {
		listing = &models.Listing{
			DealerID:        row.DealerID,
			VIN:             vin,
			VDPURL:          row.VDPURL,
			StockNumber:     row.StockNumber,
			Status:          status,
			AdvertisedPrice: advertised,
			PriceDeltaMSRP:  priceDelta(advertised, effectiveMSRP),
			FirstSeenAt:     &firstSeen,
			LastSeenAt:      &lastSeen,
			SourceRank:      rankOrDefault(row.SourceRank),
		}
		if err := tx.PutListing(ctx, listing); err != nil {
			return err
		}
		stats.ListingsUpserted++
		return nil
	}

	var oldPrice *decimal.Decimal
	if listing.AdvertisedPrice != nil {
		p := *listing.AdvertisedPrice
		oldPrice = &p
	}

	if row.VDPURL != "" {
		listing.VDPURL = row.VDPURL
	}
	if row.StockNumber != "" {
		listing.StockNumber = row.StockNumber
	}
	listing.Status = status
	if advertised != nil {
		listing.AdvertisedPrice = advertised
	}

	// Delta is only recomputed when both sides are known; a row without
	// prices keeps the previous delta.
	if listing.AdvertisedPrice != nil && effectiveMSRP != nil {
		delta := listing.AdvertisedPrice.Sub(*effectiveMSRP)
		listing.PriceDeltaMSRP = &delta
	}

	if listing.FirstSeenAt == nil || firstSeen.Before(*listing.FirstSeenAt) {
		listing.FirstSeenAt = &firstSeen
	}
	if listing.LastSeenAt == nil || lastSeen.After(*listing.LastSeenAt) {
		listing.LastSeenAt = &lastSeen
	}

	// Rank only lowers. A less trusted writer never displaces a more
	// trusted one.
	if rank := row.SourceRank; rank != nil && *rank > 0 && *rank < listing.SourceRank {
		listing.SourceRank = *rank
	}

	if err := tx.PutListing(ctx, listing); err != nil {
		return err
	}
	stats.ListingsUpserted++

	if advertised != nil && oldPrice != nil && !advertised.Equal(*oldPrice) {
		delta := advertised.Sub(*oldPrice)
		event := &models.PriceEvent{
			DealerID:   row.DealerID,
			VIN:        vin,
			ObservedAt: observedAt,
			OldPrice:   *oldPrice,
			NewPrice:   *advertised,
			Delta:      delta,
			Pct:        pricePct(delta, *oldPrice),
		}
		if err := tx.InsertPriceEvent(ctx, event); err != nil {
			return err
		}
		stats.PriceEvents++
	}

	return nil
}

// mergeVehicle overwrites vehicle attributes with non-empty incoming
// values. Absent fields keep their stored value.
func mergeVehicle(vehicle *models.Vehicle, attrs *models.VehicleAttrs) {
	if attrs == nil {
		return
	}
	if attrs.Make != "" {
		vehicle.Make = attrs.Make
	}
	if attrs.Model != "" {
		vehicle.Model = attrs.Model
	}
	if attrs.Year != nil {
		vehicle.Year = attrs.Year
	}
	if attrs.Trim != "" {
		vehicle.Trim = attrs.Trim
	}
	if attrs.Drivetrain != "" {
		vehicle.Drivetrain = attrs.Drivetrain
	}
	if attrs.Transmission != "" {
		vehicle.Transmission = attrs.Transmission
	}
	if attrs.ExteriorColor != "" {
		vehicle.ExteriorColor = attrs.ExteriorColor
	}
	if attrs.InteriorColor != "" {
		vehicle.InteriorColor = attrs.InteriorColor
	}
	if attrs.MSRP != nil {
		vehicle.MSRP = attrs.MSRP
	}
	if attrs.InvoicePrice != nil {
		vehicle.InvoicePrice = attrs.InvoicePrice
	}
	if attrs.Features != nil {
		vehicle.Features = attrs.Features
	}
}

// withMSRPAssumption returns a copy of payload annotated with the
// price-fallback marker. The input map is never mutated.
func withMSRPAssumption(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["assumptions"] = map[string]any{"ad_price_equals_msrp": true}
	return out
}

func priceDelta(advertised, msrp *decimal.Decimal) *decimal.Decimal {
	if advertised == nil || msrp == nil {
		return nil
	}
	delta := advertised.Sub(*msrp)
	return &delta
}

// pricePct returns delta/old·100 at scale-4 intermediate precision,
// rounded to two places. Nil when the old price is zero.
func pricePct(delta, oldPrice decimal.Decimal) *decimal.Decimal {
	if oldPrice.IsZero() {
		return nil
	}
	pct := delta.Mul(decimal.NewFromInt(100)).DivRound(oldPrice, pctScale).Round(2)
	return &pct
}

func rankOrDefault(rank *int) int {
	if rank != nil && *rank > 0 {
		return *rank
	}
	return models.DefaultSourceRank
}
