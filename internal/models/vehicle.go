package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vehicle is the canonical per-VIN record. Rows are shared across dealers;
// a VIN observed at two dealers still maps to one Vehicle.
type Vehicle struct {
	VIN   string `json:"vin"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  *int   `json:"year,omitempty"`
	Trim  string `json:"trim,omitempty"`

	Drivetrain    string `json:"drivetrain,omitempty"`
	Transmission  string `json:"transmission,omitempty"`
	ExteriorColor string `json:"exterior_color,omitempty"`
	InteriorColor string `json:"interior_color,omitempty"`

	MSRP         *decimal.Decimal `json:"msrp,omitempty"`
	InvoicePrice *decimal.Decimal `json:"invoice_price,omitempty"`

	// Features holds source-shaped JSON: a list for most backends, an
	// object for window-sticker imports.
	Features any `json:"features,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
