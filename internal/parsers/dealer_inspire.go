package parsers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
)

var dealerInspireConfig = heuristicConfig{
	statusRules: []statusRule{
		{"IN TRANSIT", models.ListingStatusInTransit},
		{"IN-TRANSIT", models.ListingStatusInTransit},
		{"COMING SOON", models.ListingStatusInTransit},
		{"SOLD", models.ListingStatusSold},
		{"AVAILABLE", models.ListingStatusAvailable},
		{"IN STOCK", models.ListingStatusAvailable},
	},
	priceKeywords: []priceKeyword{
		{"sale price", 1},
		{"our price", 1},
		{"internet price", 2},
		{"special price", 2},
		{"market price", 3},
		{"dealer price", 3},
		{"price", 4},
	},
}

// ParseDealerInspire reads DealerInspire SRP markup.
func ParseDealerInspire(content string) ([]models.ParsedRow, error) {
	return parseHeuristic(content, dealerInspireConfig), nil
}

const defaultAlgoliaHitsPerPage = 250

var (
	algoliaAppIDPattern  = regexp.MustCompile(`(?i)["']?app_?id["']?\s*[:=]\s*["']([^"']+)["']`)
	algoliaAPIKeyPattern = regexp.MustCompile(`(?i)["']?api_?key["']?\s*[:=]\s*["']([^"']+)["']`)
	algoliaIndexPattern  = regexp.MustCompile(`(?i)["']?index(?:Name)?["']?\s*[:=]\s*["']([^"']+)["']`)
	algoliaFilterPattern = regexp.MustCompile(`(?i)["']filters["']\s*:\s*["']([^"']+)["']`)
	algoliaHitsPattern   = regexp.MustCompile(`(?i)hitsPerPage["']?\s*[:=]\s*(\d+)`)

	algoliaHelperPattern = regexp.MustCompile(`(?is)<[^>]+id=["']sb-algolia-helper["'][^>]*>`)
	helperAppIDAttr      = regexp.MustCompile(`(?i)data-app-id=["']([^"']+)["']`)
	helperAPIKeyAttr     = regexp.MustCompile(`(?i)data-(?:search-)?api-key=["']([^"']+)["']`)
	helperIndexAttr      = regexp.MustCompile(`(?i)data-index(?:-name)?=["']([^"']+)["']`)
)

// AlgoliaConfig is the search credential block a DealerInspire page embeds
// for its client-side inventory widget.
type AlgoliaConfig struct {
	AppID       string
	APIKey      string
	Index       string
	Filters     string
	HitsPerPage int
}

// ExtractAlgoliaConfig pulls Algolia credentials from either the
// inventoryLightningSettings script object or the #sb-algolia-helper
// element's data attributes.
func ExtractAlgoliaConfig(html string) (*AlgoliaConfig, bool) {
	if html == "" {
		return nil, false
	}

	cfg := &AlgoliaConfig{HitsPerPage: defaultAlgoliaHitsPerPage}

	if strings.Contains(html, "inventoryLightningSettings") {
		if m := algoliaAppIDPattern.FindStringSubmatch(html); m != nil {
			cfg.AppID = strings.TrimSpace(m[1])
		}
		if m := algoliaAPIKeyPattern.FindStringSubmatch(html); m != nil {
			cfg.APIKey = strings.TrimSpace(m[1])
		}
		if m := algoliaIndexPattern.FindStringSubmatch(html); m != nil {
			cfg.Index = strings.TrimSpace(m[1])
		}
	}

	if cfg.AppID == "" || cfg.APIKey == "" || cfg.Index == "" {
		if tag := algoliaHelperPattern.FindString(html); tag != "" {
			if m := helperAppIDAttr.FindStringSubmatch(tag); m != nil {
				cfg.AppID = strings.TrimSpace(m[1])
			}
			if m := helperAPIKeyAttr.FindStringSubmatch(tag); m != nil {
				cfg.APIKey = strings.TrimSpace(m[1])
			}
			if m := helperIndexAttr.FindStringSubmatch(tag); m != nil {
				cfg.Index = strings.TrimSpace(m[1])
			}
		}
	}

	if cfg.AppID == "" || cfg.APIKey == "" || cfg.Index == "" {
		return nil, false
	}

	if m := algoliaFilterPattern.FindStringSubmatch(html); m != nil {
		cfg.Filters = strings.TrimSpace(m[1])
	}
	if m := algoliaHitsPattern.FindStringSubmatch(html); m != nil {
		if hits, err := strconv.Atoi(m[1]); err == nil && hits > 0 {
			cfg.HitsPerPage = hits
		}
	}
	return cfg, true
}

// BuildAlgoliaParams renders the query-string body for an Algolia index
// query, narrowing to new Toyota stock of the requested model on top of any
// refinements the page itself declared.
func BuildAlgoliaParams(cfg *AlgoliaConfig, model string) string {
	filters := make([]string, 0, 4)
	if cfg.Filters != "" {
		filters = append(filters, cfg.Filters)
	}
	if model != "" {
		filters = append(filters, fmt.Sprintf("model:%q", model))
	}
	filters = append(filters, `make:"Toyota"`, `type:"New"`)

	params := url.Values{}
	params.Set("query", "")
	params.Set("hitsPerPage", strconv.Itoa(cfg.HitsPerPage))
	params.Set("filters", strings.Join(filters, " AND "))
	return params.Encode()
}

// ParseAlgoliaHits maps an Algolia query response to rows. Relative VDP
// links are joined onto the scraped page's origin.
func ParseAlgoliaHits(body []byte, baseURL string) ([]models.ParsedRow, error) {
	var payload struct {
		Hits []map[string]any `json:"hits"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	rows := make([]models.ParsedRow, 0, len(payload.Hits))
	for _, hit := range payload.Hits {
		vin := strings.ToUpper(stringField(hit, "vin"))
		if vin == "" {
			continue
		}

		status := models.ListingStatusAvailable
		if inTransit, ok := hit["in_transit"].(bool); ok && inTransit {
			status = models.ListingStatusInTransit
		}

		vdp := stringField(hit, "link")
		if vdp != "" && !strings.HasPrefix(vdp, "http") {
			vdp = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(vdp, "/")
		}

		row := models.ParsedRow{
			VIN:             vin,
			AdvertisedPrice: coerceDecimal(hit["our_price"]),
			MSRP:            coerceDecimal(hit["msrp"]),
			Status:          status,
			VDPURL:          vdp,
			StockNumber:     stringField(hit, "stock"),
			ImageURL:        stringField(hit, "thumbnail"),
			Make:            stringField(hit, "make"),
			Model:           stringField(hit, "model"),
			Year:            coerceYear(hit["year"]),
			Trim:            stringField(hit, "trim"),
			ExteriorColor:   stringField(hit, "ext_color"),
			InteriorColor:   stringField(hit, "int_color"),
		}
		if features, ok := hit["features"].([]any); ok && len(features) > 0 {
			row.Features = features
		}
		rows = append(rows, row)
	}
	return rows, nil
}
