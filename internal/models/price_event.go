package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceEvent records one advertised-price change for a (dealer, vin) pair.
// Emitted only when a non-null price replaces a different non-null price.
type PriceEvent struct {
	ID         int64            `json:"id"`
	DealerID   int64            `json:"dealer_id"`
	VIN        string           `json:"vin"`
	ObservedAt time.Time        `json:"observed_at"`
	OldPrice   decimal.Decimal  `json:"old_price"`
	NewPrice   decimal.Decimal  `json:"new_price"`
	Delta      decimal.Decimal  `json:"delta"`
	Pct        *decimal.Decimal `json:"pct,omitempty"`
}
