package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing statuses. Scrapes write the first five; missing and sold are also
// produced by the absence reconciler.
const (
	ListingStatusAvailable  = "available"
	ListingStatusInTransit  = "in_transit"
	ListingStatusBuildPhase = "build_phase"
	ListingStatusPending    = "pending"
	ListingStatusHold       = "hold"
	ListingStatusMissing    = "missing"
	ListingStatusSold       = "sold"
)

// DefaultSourceRank is assigned to listings whose writer did not claim a
// rank. Lower ranks are more trusted and cannot be overwritten upward.
const DefaultSourceRank = 100

// Listing is the current market state of one VIN at one dealer, keyed by
// (dealer_id, vin). History lives in observations; this row is the rollup.
type Listing struct {
	DealerID int64  `json:"dealer_id"`
	VIN      string `json:"vin"`

	VDPURL      string `json:"vdp_url,omitempty"`
	StockNumber string `json:"stock_number,omitempty"`
	Status      string `json:"status"`

	AdvertisedPrice *decimal.Decimal `json:"advertised_price,omitempty"`
	PriceDeltaMSRP  *decimal.Decimal `json:"price_delta_msrp,omitempty"`

	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	SourceRank  int        `json:"source_rank"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
