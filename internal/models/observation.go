package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Observation sources, in rough order of trust.
const (
	SourceInventoryList = "inventory_list"
	SourceVDP           = "vdp"
	SourceUpload        = "upload"
	SourceImport        = "import"
)

// ZeroJobID is the sentinel job id recorded when an observation arrives
// outside any scrape job.
var ZeroJobID = uuid.Nil

// Observation is one append-only sighting of a VIN at a dealer. Rows are
// never updated; the reconciler folds them into listings.
type Observation struct {
	ID         int64            `json:"id"`
	JobID      uuid.UUID        `json:"job_id"`
	ObservedAt time.Time        `json:"observed_at"`
	DealerID   int64            `json:"dealer_id"`
	VIN        string           `json:"vin"`
	VDPURL     string           `json:"vdp_url,omitempty"`
	Advertised *decimal.Decimal `json:"advertised_price,omitempty"`
	MSRP       *decimal.Decimal `json:"msrp,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty"`
	RawBlobKey string           `json:"raw_blob_key,omitempty"`
	Source     string           `json:"source"`
}
