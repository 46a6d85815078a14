package models

import (
	"encoding/json"
	"time"
)

// TemplateScope values accepted in scraping_config.
const (
	ScopeAbsolute = "absolute"
	ScopeRelative = "relative"
)

// ScrapingConfig carries per-dealer scrape tuning stored as JSON on the
// dealer row. Tokens override the model registry during URL building.
type ScrapingConfig struct {
	TemplateScope string            `json:"template_scope,omitempty"`
	UsesSmartPath bool              `json:"uses_smartpath,omitempty"`
	Tokens        map[string]string `json:"tokens,omitempty"`
	Firecrawl     *FirecrawlHint    `json:"firecrawl,omitempty"`
}

// FirecrawlHint selects fetch-service options for a dealer.
type FirecrawlHint struct {
	Proxy string `json:"proxy,omitempty"`
}

// UnmarshalJSON accepts either a JSON object or a double-encoded JSON string,
// both of which appear in seeded dealer exports.
func (c *ScrapingConfig) UnmarshalJSON(data []byte) error {
	var nested string
	if err := json.Unmarshal(data, &nested); err == nil {
		data = []byte(nested)
	}
	type plain ScrapingConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ScrapingConfig(p)
	return nil
}

// Proxy returns the configured fetch proxy hint, if any.
func (c *ScrapingConfig) Proxy() string {
	if c == nil || c.Firecrawl == nil {
		return ""
	}
	return c.Firecrawl.Proxy
}

// Scope returns the template scope, defaulting to relative.
func (c *ScrapingConfig) Scope() string {
	if c == nil || c.TemplateScope == "" {
		return ScopeRelative
	}
	return c.TemplateScope
}

// Dealer is a catalog entry for a single dealership site.
type Dealer struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Region      string `json:"region,omitempty"`
	District    string `json:"district_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	HomepageURL string `json:"homepage_url"`

	BackendType          string          `json:"backend_type"`
	InventoryURLTemplate string          `json:"inventory_url_template,omitempty"`
	ScrapingConfig       *ScrapingConfig `json:"scraping_config,omitempty"`

	IsActive      bool       `json:"is_active"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Backend returns the canonical backend tag for parser selection.
func (d *Dealer) Backend() Backend {
	return ParseBackend(d.BackendType)
}
