package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// ingestTx is the transactional write surface the reconcilers run inside.
// All writes commit or roll back together per batch.
type ingestTx struct {
	tx pgx.Tx
}

// InTx runs fn inside one transaction. Any error from fn rolls the whole
// batch back.
func (s *Store) InTx(ctx context.Context, fn func(tx interfaces.IngestTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ingestTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *ingestTx) GetVehicle(ctx context.Context, vin string) (*models.Vehicle, error) {
	return getVehicle(ctx, t.tx, vin)
}

func (t *ingestTx) UpsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	featuresJSON, err := encodeJSON(vehicle.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features for vehicle %s: %w", vehicle.VIN, err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO vehicles (vin, make, model, year, trim, drivetrain, transmission,
			exterior_color, interior_color, msrp, invoice_price, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (vin) DO UPDATE SET
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			trim = EXCLUDED.trim,
			drivetrain = EXCLUDED.drivetrain,
			transmission = EXCLUDED.transmission,
			exterior_color = EXCLUDED.exterior_color,
			interior_color = EXCLUDED.interior_color,
			msrp = EXCLUDED.msrp,
			invoice_price = EXCLUDED.invoice_price,
			features = EXCLUDED.features,
			updated_at = now()`,
		vehicle.VIN, vehicle.Make, vehicle.Model, vehicle.Year, vehicle.Trim,
		vehicle.Drivetrain, vehicle.Transmission, vehicle.ExteriorColor,
		vehicle.InteriorColor, vehicle.MSRP, vehicle.InvoicePrice, featuresJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle %s: %w", vehicle.VIN, err)
	}
	return nil
}

func (t *ingestTx) GetListing(ctx context.Context, dealerID int64, vin string) (*models.Listing, error) {
	return getListing(ctx, t.tx, dealerID, vin)
}

// PutListing writes the full listing state computed by the reconciler.
// Seen-window merging happens in the reconciler, not here.
func (t *ingestTx) PutListing(ctx context.Context, listing *models.Listing) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO listings (dealer_id, vin, vdp_url, stock_number, status,
			advertised_price, price_delta_msrp, first_seen_at, last_seen_at, source_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dealer_id, vin) DO UPDATE SET
			vdp_url = EXCLUDED.vdp_url,
			stock_number = EXCLUDED.stock_number,
			status = EXCLUDED.status,
			advertised_price = EXCLUDED.advertised_price,
			price_delta_msrp = EXCLUDED.price_delta_msrp,
			first_seen_at = EXCLUDED.first_seen_at,
			last_seen_at = EXCLUDED.last_seen_at,
			source_rank = EXCLUDED.source_rank,
			updated_at = now()`,
		listing.DealerID, listing.VIN, listing.VDPURL, listing.StockNumber, listing.Status,
		listing.AdvertisedPrice, listing.PriceDeltaMSRP, listing.FirstSeenAt,
		listing.LastSeenAt, listing.SourceRank,
	)
	if err != nil {
		return fmt.Errorf("failed to put listing %d/%s: %w", listing.DealerID, listing.VIN, err)
	}
	return nil
}

func (t *ingestTx) InsertObservation(ctx context.Context, obs *models.Observation) error {
	payloadJSON, err := encodeJSON(obs.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode observation payload: %w", err)
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO observations (job_id, observed_at, dealer_id, vin, vdp_url,
			advertised_price, msrp, payload, raw_blob_key, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		obs.JobID, obs.ObservedAt, obs.DealerID, obs.VIN, obs.VDPURL,
		obs.Advertised, obs.MSRP, payloadJSON, obs.RawBlobKey, obs.Source,
	).Scan(&obs.ID)
	if err != nil {
		return fmt.Errorf("failed to insert observation for %d/%s: %w", obs.DealerID, obs.VIN, err)
	}
	return nil
}

func (t *ingestTx) InsertPriceEvent(ctx context.Context, event *models.PriceEvent) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO price_events (dealer_id, vin, observed_at, old_price, new_price, delta, pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		event.DealerID, event.VIN, event.ObservedAt, event.OldPrice, event.NewPrice,
		event.Delta, event.Pct,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert price event for %d/%s: %w", event.DealerID, event.VIN, err)
	}
	return nil
}

// ListAbsenceCandidates returns the dealer's listings for a model whose
// source rank is null or at most maxRank. These are the rows a list scrape
// is expected to have re-observed.
func (t *ingestTx) ListAbsenceCandidates(ctx context.Context, dealerID int64, model string, maxRank int) ([]*models.Listing, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings l
		JOIN vehicles v ON v.vin = l.vin
		WHERE l.dealer_id = $1
		  AND v.model = $2
		  AND (l.source_rank IS NULL OR l.source_rank <= $3)`,
		dealerID, model, maxRank)
	if err != nil {
		return nil, fmt.Errorf("failed to list absence candidates: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan absence candidate: %w", err)
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}
