package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

const listingColumns = `l.dealer_id, l.vin, l.vdp_url, l.stock_number, l.status,
	l.advertised_price, l.price_delta_msrp, l.first_seen_at, l.last_seen_at,
	COALESCE(l.source_rank, 100), l.created_at, l.updated_at`

const vehicleSelect = `SELECT vin, make, model, year, trim, drivetrain, transmission,
	exterior_color, interior_color, msrp, invoice_price, features, created_at, updated_at
	FROM vehicles`

// GetListing returns the current state of one (dealer, vin) pair, or
// (nil, nil) when it has never been observed.
func (s *Store) GetListing(ctx context.Context, dealerID int64, vin string) (*models.Listing, error) {
	return getListing(ctx, s.pool, dealerID, vin)
}

// ListListings returns listings matching the filter, most recently seen
// first.
func (s *Store) ListListings(ctx context.Context, filter interfaces.ListingFilter) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings l`
	var conds []string
	var args []any

	if filter.Model != "" {
		query += ` JOIN vehicles v ON v.vin = l.vin`
		args = append(args, filter.Model)
		conds = append(conds, fmt.Sprintf("v.model = $%d", len(args)))
	}
	if filter.DealerID != 0 {
		args = append(args, filter.DealerID)
		conds = append(conds, fmt.Sprintf("l.dealer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("l.status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY l.last_seen_at DESC NULLS LAST LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

// GetVehicle returns the canonical record for a VIN, or (nil, nil) when
// unknown.
func (s *Store) GetVehicle(ctx context.Context, vin string) (*models.Vehicle, error) {
	return getVehicle(ctx, s.pool, vin)
}

// ListObservations returns the sighting history for one (dealer, vin)
// pair, newest first.
func (s *Store) ListObservations(ctx context.Context, dealerID int64, vin string, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, observed_at, dealer_id, vin, vdp_url, advertised_price,
			msrp, payload, raw_blob_key, source
		FROM observations
		WHERE dealer_id = $1 AND vin = $2
		ORDER BY observed_at DESC, id DESC
		LIMIT $3`,
		dealerID, vin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	var observations []*models.Observation
	for rows.Next() {
		var o models.Observation
		var payloadJSON []byte
		err := rows.Scan(&o.ID, &o.JobID, &o.ObservedAt, &o.DealerID, &o.VIN, &o.VDPURL,
			&o.Advertised, &o.MSRP, &payloadJSON, &o.RawBlobKey, &o.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &o.Payload); err != nil {
				return nil, fmt.Errorf("invalid payload on observation %d: %w", o.ID, err)
			}
		}
		observations = append(observations, &o)
	}
	return observations, rows.Err()
}

// ListPriceEvents returns price changes for a VIN across all dealers,
// newest first.
func (s *Store) ListPriceEvents(ctx context.Context, vin string, limit int) ([]*models.PriceEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, dealer_id, vin, observed_at, old_price, new_price, delta, pct
		FROM price_events
		WHERE vin = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT $2`,
		vin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list price events: %w", err)
	}
	defer rows.Close()

	var events []*models.PriceEvent
	for rows.Next() {
		var e models.PriceEvent
		err := rows.Scan(&e.ID, &e.DealerID, &e.VIN, &e.ObservedAt, &e.OldPrice,
			&e.NewPrice, &e.Delta, &e.Pct)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func getListing(ctx context.Context, q querier, dealerID int64, vin string) (*models.Listing, error) {
	row := q.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings l WHERE l.dealer_id = $1 AND l.vin = $2`,
		dealerID, vin)
	listing, err := scanListing(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %d/%s: %w", dealerID, vin, err)
	}
	return listing, nil
}

func getVehicle(ctx context.Context, q querier, vin string) (*models.Vehicle, error) {
	vehicle, err := scanVehicle(q.QueryRow(ctx, vehicleSelect+` WHERE vin = $1`, vin))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle %s: %w", vin, err)
	}
	return vehicle, nil
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.DealerID, &l.VIN, &l.VDPURL, &l.StockNumber, &l.Status,
		&l.AdvertisedPrice, &l.PriceDeltaMSRP, &l.FirstSeenAt, &l.LastSeenAt,
		&l.SourceRank, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	var v models.Vehicle
	var featuresJSON []byte
	err := row.Scan(&v.VIN, &v.Make, &v.Model, &v.Year, &v.Trim, &v.Drivetrain,
		&v.Transmission, &v.ExteriorColor, &v.InteriorColor, &v.MSRP, &v.InvoicePrice,
		&featuresJSON, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(featuresJSON) > 0 {
		var features any
		if err := json.Unmarshal(featuresJSON, &features); err != nil {
			return nil, fmt.Errorf("invalid features on vehicle %s: %w", v.VIN, err)
		}
		v.Features = features
	}
	return &v, nil
}
