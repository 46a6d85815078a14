package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ParsedRow is one vehicle extracted from a dealer page or follow-up API
// response. Fields are best-effort; only VIN is guaranteed.
type ParsedRow struct {
	VIN             string           `json:"vin"`
	AdvertisedPrice *decimal.Decimal `json:"advertised_price,omitempty"`
	MSRP            *decimal.Decimal `json:"msrp,omitempty"`
	Status          string           `json:"status,omitempty"`
	VDPURL          string           `json:"vdp_url,omitempty"`
	StockNumber     string           `json:"stock_number,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`

	Make          string `json:"make,omitempty"`
	Model         string `json:"model,omitempty"`
	Year          *int   `json:"year,omitempty"`
	Trim          string `json:"trim,omitempty"`
	ExteriorColor string `json:"exterior_color,omitempty"`
	InteriorColor string `json:"interior_color,omitempty"`
	Features      any    `json:"features,omitempty"`
}

// VehicleAttrs are the vehicle-level fields an ingest row may carry. Non-nil
// and non-empty values overwrite the stored vehicle; absent fields are kept.
type VehicleAttrs struct {
	Make          string           `json:"make,omitempty"`
	Model         string           `json:"model,omitempty"`
	Year          *int             `json:"year,omitempty"`
	Trim          string           `json:"trim,omitempty"`
	Drivetrain    string           `json:"drivetrain,omitempty"`
	Transmission  string           `json:"transmission,omitempty"`
	ExteriorColor string           `json:"exterior_color,omitempty"`
	InteriorColor string           `json:"interior_color,omitempty"`
	MSRP          *decimal.Decimal `json:"msrp,omitempty"`
	InvoicePrice  *decimal.Decimal `json:"invoice_price,omitempty"`
	Features      any              `json:"features,omitempty"`
}

// IngestRow is the normalized unit the reconciler consumes. Scrape tasks,
// VDP probes, and import paths all reduce to this shape.
type IngestRow struct {
	DealerID        int64            `json:"dealer_id"`
	VIN             string           `json:"vin"`
	AdvertisedPrice *decimal.Decimal `json:"advertised_price,omitempty"`
	MSRP            *decimal.Decimal `json:"msrp,omitempty"`
	Status          string           `json:"status,omitempty"`
	VDPURL          string           `json:"vdp_url,omitempty"`
	StockNumber     string           `json:"stock_number,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
	JobID      uuid.UUID `json:"job_id"`
	Source     string    `json:"source"`
	SourceRank *int      `json:"source_rank,omitempty"`

	Payload    map[string]any `json:"payload,omitempty"`
	RawBlobKey string         `json:"raw_blob_key,omitempty"`

	// Explicit seen-window overrides, used by import sources that carry
	// their own history. Scrapes leave these nil.
	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`

	Vehicle *VehicleAttrs `json:"vehicle,omitempty"`
}
