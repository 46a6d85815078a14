package interfaces

import (
	"context"

	"github.com/ternarybob/lotwatch/internal/models"
)

// ScrapeOptions tunes a single fetch call.
type ScrapeOptions struct {
	Proxy        string // proxy mode hint, empty for service default
	AllowExtract bool   // permit the slower extract fallback when scrape yields no content
}

// FetchService - client for the rendering fetch service
type FetchService interface {
	Scrape(ctx context.Context, url string, opts ScrapeOptions) (*models.FetchResult, error)
}
