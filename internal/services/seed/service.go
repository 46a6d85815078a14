package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// CatalogExport is the JSON document produced by the dealer catalog export.
// The top level may also be a bare array of dealer records.
type CatalogExport struct {
	Dealers []CatalogDealer `json:"dealers"`

	// Dealer ids whose sites run Team Velocity regardless of the backend
	// tag the export carries.
	TeamVelocityDealerIDs []int64 `json:"team_velocity_dealer_ids,omitempty"`
}

// CatalogDealer is one dealer record in the export.
type CatalogDealer struct {
	ID                   int64                  `json:"dealer_id" validate:"required,gt=0"`
	Name                 string                 `json:"name" validate:"required"`
	Code                 string                 `json:"code,omitempty"`
	Region               string                 `json:"region,omitempty"`
	District             string                 `json:"district_code,omitempty"`
	Phone                string                 `json:"phone,omitempty"`
	City                 string                 `json:"city,omitempty"`
	State                string                 `json:"state,omitempty"`
	PostalCode           string                 `json:"postal_code,omitempty"`
	HomepageURL          string                 `json:"homepage_url,omitempty" validate:"omitempty,url"`
	BackendType          string                 `json:"backend_type" validate:"required"`
	InventoryURLTemplate string                 `json:"inventory_url_template,omitempty"`
	ScrapingConfig       *models.ScrapingConfig `json:"scraping_config,omitempty"`
	IsActive             *bool                  `json:"is_active,omitempty"`
}

// ImportResult summarizes one catalog import.
type ImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// placeholderRepairs rewrites template placeholder variants seen in dealer
// exports onto the supported token set.
var placeholderRepairs = []struct {
	from string
	to   string
}{
	{"{modelParam}", "{model_plus}"},
	{"{model_param}", "{model_plus}"},
	{"{model}", "{model_plus}"},
	{"{MODEL}", "{model_plus}"},
	{"{ModelSlug}", "{model_slug}"},
	{"{model_slugified}", "{model_slug}"},
}

// Service imports dealer catalog exports into the dealer store.
type Service struct {
	dealers  interfaces.DealerStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a dealer catalog import service.
func NewService(dealers interfaces.DealerStorage, logger arbor.ILogger) *Service {
	return &Service{
		dealers:  dealers,
		validate: validator.New(),
		logger:   logger,
	}
}

// ImportFile imports a dealer catalog export from disk.
func (s *Service) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dealer export: %w", err)
	}
	defer f.Close()

	s.logger.Info().Str("path", path).Msg("Importing dealer catalog")
	return s.ImportDealers(ctx, f)
}

// ImportDealers reads a catalog export and upserts every valid dealer record.
// Records that fail validation or storage are skipped and reported in the
// result; only an unreadable document fails the import as a whole.
func (s *Service) ImportDealers(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dealer export: %w", err)
	}

	export, err := decodeExport(data)
	if err != nil {
		return nil, err
	}

	overrides := make(map[int64]bool, len(export.TeamVelocityDealerIDs))
	for _, id := range export.TeamVelocityDealerIDs {
		overrides[id] = true
	}

	result := &ImportResult{Total: len(export.Dealers)}
	for i := range export.Dealers {
		record := &export.Dealers[i]
		if err := s.importRecord(ctx, record, overrides); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("dealer %d: %v", record.ID, err))
			s.logger.Warn().
				Int64("dealer_id", record.ID).
				Err(err).
				Msg("Dealer record skipped")
			continue
		}
		result.Imported++
	}

	s.logger.Info().
		Int("total", result.Total).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("Dealer catalog import finished")

	return result, nil
}

// importRecord normalizes and stores a single export record.
func (s *Service) importRecord(ctx context.Context, record *CatalogDealer, overrides map[int64]bool) error {
	if err := s.validate.Struct(record); err != nil {
		return fmt.Errorf("invalid dealer record: %w", err)
	}

	template := repairTemplate(record.InventoryURLTemplate)
	backend := models.ClassifyBackend(record.BackendType, template, record.ID, overrides)
	if !backend.Known() {
		s.logger.Warn().
			Int64("dealer_id", record.ID).
			Str("backend", backend.String()).
			Msg("Dealer backend has no registered parser")
	}

	config := record.ScrapingConfig
	if config == nil {
		config = &models.ScrapingConfig{}
	}
	config.TemplateScope = inferScope(template)
	config.UsesSmartPath = strings.Contains(strings.ToLower(template), "smartpath")

	active := true
	if record.IsActive != nil {
		active = *record.IsActive
	}

	dealer := &models.Dealer{
		ID:                   record.ID,
		Name:                 record.Name,
		Code:                 record.Code,
		Region:               record.Region,
		District:             record.District,
		Phone:                record.Phone,
		City:                 record.City,
		State:                record.State,
		PostalCode:           record.PostalCode,
		HomepageURL:          record.HomepageURL,
		BackendType:          backend.String(),
		InventoryURLTemplate: template,
		ScrapingConfig:       config,
		IsActive:             active,
	}

	if err := s.dealers.UpsertDealer(ctx, dealer); err != nil {
		return fmt.Errorf("failed to upsert dealer: %w", err)
	}

	s.logger.Debug().
		Int64("dealer_id", dealer.ID).
		Str("backend", dealer.BackendType).
		Str("scope", config.TemplateScope).
		Msg("Dealer imported")

	return nil
}

// decodeExport accepts either the full export object or a bare dealer array.
func decodeExport(data []byte) (*CatalogExport, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("dealer export is empty")
	}

	if trimmed[0] == '[' {
		var dealers []CatalogDealer
		if err := json.Unmarshal(trimmed, &dealers); err != nil {
			return nil, fmt.Errorf("failed to parse dealer export: %w", err)
		}
		return &CatalogExport{Dealers: dealers}, nil
	}

	var export CatalogExport
	if err := json.Unmarshal(trimmed, &export); err != nil {
		return nil, fmt.Errorf("failed to parse dealer export: %w", err)
	}
	return &export, nil
}

// repairTemplate rewrites known placeholder variants onto supported tokens.
func repairTemplate(template string) string {
	for _, repair := range placeholderRepairs {
		template = strings.ReplaceAll(template, repair.from, repair.to)
	}
	return template
}

// inferScope derives the template scope from the template itself. Templates
// carrying their own scheme are absolute; everything else resolves against
// the dealer homepage.
func inferScope(template string) string {
	if strings.HasPrefix(template, "http") {
		return models.ScopeAbsolute
	}
	return models.ScopeRelative
}
