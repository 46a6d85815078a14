package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

const dealerSelect = `SELECT id, name, code, region, district_code, phone, city, state, postal_code,
	homepage_url, backend_type, inventory_url_template, scraping_config, is_active,
	last_scraped_at, created_at, updated_at FROM dealers`

// UpsertDealer inserts or refreshes one catalog row keyed by dealer id.
func (s *Store) UpsertDealer(ctx context.Context, dealer *models.Dealer) error {
	configJSON, err := encodeJSON(dealer.ScrapingConfig)
	if err != nil {
		return fmt.Errorf("failed to encode scraping config for dealer %d: %w", dealer.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dealers (id, name, code, region, district_code, phone, city, state, postal_code,
			homepage_url, backend_type, inventory_url_template, scraping_config, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			region = EXCLUDED.region,
			district_code = EXCLUDED.district_code,
			phone = EXCLUDED.phone,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			homepage_url = EXCLUDED.homepage_url,
			backend_type = EXCLUDED.backend_type,
			inventory_url_template = EXCLUDED.inventory_url_template,
			scraping_config = EXCLUDED.scraping_config,
			is_active = EXCLUDED.is_active,
			updated_at = now()`,
		dealer.ID, dealer.Name, dealer.Code, dealer.Region, dealer.District, dealer.Phone,
		dealer.City, dealer.State, dealer.PostalCode, dealer.HomepageURL, dealer.BackendType,
		dealer.InventoryURLTemplate, configJSON, dealer.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dealer %d: %w", dealer.ID, err)
	}
	return nil
}

// GetDealer returns one dealer, or (nil, nil) when the id is unknown.
func (s *Store) GetDealer(ctx context.Context, id int64) (*models.Dealer, error) {
	dealer, err := scanDealer(s.pool.QueryRow(ctx, dealerSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dealer %d: %w", id, err)
	}
	return dealer, nil
}

// ListDealers returns catalog rows matching the filter, ordered by id.
func (s *Store) ListDealers(ctx context.Context, filter interfaces.DealerFilter) ([]*models.Dealer, error) {
	query := dealerSelect
	var conds []string
	var args []any

	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if filter.Region != "" {
		args = append(args, filter.Region)
		conds = append(conds, fmt.Sprintf("region = $%d", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dealers: %w", err)
	}
	defer rows.Close()

	var dealers []*models.Dealer
	for rows.Next() {
		dealer, err := scanDealer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dealer: %w", err)
		}
		dealers = append(dealers, dealer)
	}
	return dealers, rows.Err()
}

// TouchLastScraped stamps the dealer after a successful scrape task.
func (s *Store) TouchLastScraped(ctx context.Context, dealerID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dealers SET last_scraped_at = $2, updated_at = now() WHERE id = $1`,
		dealerID, at)
	if err != nil {
		return fmt.Errorf("failed to touch dealer %d: %w", dealerID, err)
	}
	return nil
}

// CountDealers returns the catalog size, active or not.
func (s *Store) CountDealers(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dealers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dealers: %w", err)
	}
	return count, nil
}

func scanDealer(row pgx.Row) (*models.Dealer, error) {
	var d models.Dealer
	var configJSON []byte
	err := row.Scan(&d.ID, &d.Name, &d.Code, &d.Region, &d.District, &d.Phone, &d.City, &d.State,
		&d.PostalCode, &d.HomepageURL, &d.BackendType, &d.InventoryURLTemplate, &configJSON,
		&d.IsActive, &d.LastScrapedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		var config models.ScrapingConfig
		if err := json.Unmarshal(configJSON, &config); err != nil {
			return nil, fmt.Errorf("invalid scraping config for dealer %d: %w", d.ID, err)
		}
		d.ScrapingConfig = &config
	}
	return &d, nil
}

// encodeJSON marshals a value for a jsonb column. Nil values, including
// typed nil pointers, become SQL NULL rather than jsonb 'null'.
func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}
