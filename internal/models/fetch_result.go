package models

// Fetch result provenance.
const (
	FetchSourceScrape  = "scrape"
	FetchSourceExtract = "extract"
)

// FetchResult is the content bundle the fetch service returns for one URL.
type FetchResult struct {
	URL        string         `json:"url"`
	Markdown   string         `json:"markdown,omitempty"`
	HTML       string         `json:"html,omitempty"`
	RawHTML    string         `json:"raw_html,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Source     string         `json:"source"`
}

// BestContent returns the richest content available, preferring markdown.
func (r *FetchResult) BestContent() string {
	if r.Markdown != "" {
		return r.Markdown
	}
	if r.HTML != "" {
		return r.HTML
	}
	return r.RawHTML
}

// Raw returns the rawest content available, preferring unprocessed HTML.
func (r *FetchResult) Raw() string {
	if r.RawHTML != "" {
		return r.RawHTML
	}
	if r.HTML != "" {
		return r.HTML
	}
	return r.BestContent()
}

// IngestStats counts what one reconcile batch wrote.
type IngestStats struct {
	Observations     int `json:"observations"`
	ListingsUpserted int `json:"listings_upserted"`
	PriceEvents      int `json:"price_events"`
}
