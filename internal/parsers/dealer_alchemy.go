package parsers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/lotwatch/internal/models"
)

var dealerAlchemyConfig = heuristicConfig{
	statusRules: []statusRule{
		{"IN TRANSIT", models.ListingStatusInTransit},
		{"TRANSIT", models.ListingStatusInTransit},
		{"IN STOCK", models.ListingStatusAvailable},
		{"AVAILABLE", models.ListingStatusAvailable},
		{"BUILD PHASE", models.ListingStatusBuildPhase},
		{"PENDING SALE", models.ListingStatusPending},
		{"SOLD", models.ListingStatusSold},
	},
	priceKeywords: []priceKeyword{
		{"advertised price", 1},
		{"sale price", 1},
		{"internet price", 1},
		{"final price", 1},
		{"tsrp", 2},
		{"msrp", 2},
		{"price", 3},
	},
}

// ParseDealerAlchemy reads Dealer Alchemy (and white-label Venom/Fox) SRP
// markup via the generic heuristics. Most Alchemy sites render nothing
// useful server-side, so the Typesense follow-up below does the real work.
func ParseDealerAlchemy(content string) ([]models.ParsedRow, error) {
	return parseHeuristic(content, dealerAlchemyConfig), nil
}

const defaultTypesenseHitsPerPage = 250

var (
	typesenseAPIKeyPattern = regexp.MustCompile(`(?i)apiKey\s*:\s*"([^"]+)"`)
	typesenseNodePattern   = regexp.MustCompile(`(?i)nodes\s*:\s*\[\s*{[^}]*host\s*:\s*['"]([^'"]+)['"],\s*port\s*:\s*(\d+),\s*protocol\s*:\s*['"]([^'"]+)['"][^}]*}`)
	typesenseQueryPattern  = regexp.MustCompile(`(?i)query_by\s*:\s*"([^"]+)"`)
	typesenseIndexPattern  = regexp.MustCompile(`(?i)var\s+indexName\s*=\s*"([^"]+)"`)
	typesenseCondPattern   = regexp.MustCompile(`(?i)var\s+srpCondition\s*=\s*'([^']+)'`)
	typesenseHitsPattern   = regexp.MustCompile(`(?i)hitsPerPage\s*=\s*(\d+)`)
)

// TypesenseConfig is the search credential block a Dealer Alchemy SRP embeds
// for its client-side widget.
type TypesenseConfig struct {
	APIKey      string
	Host        string
	Port        int
	Protocol    string
	IndexName   string
	QueryBy     string
	Condition   string
	HitsPerPage int
}

// ExtractTypesenseConfig parses Typesense credentials out of SRP script.
// API key, node, query_by, and index name are all required; condition and
// page size fall back to sensible defaults.
func ExtractTypesenseConfig(html string) (*TypesenseConfig, bool) {
	if html == "" {
		return nil, false
	}

	apiMatch := typesenseAPIKeyPattern.FindStringSubmatch(html)
	nodeMatch := typesenseNodePattern.FindStringSubmatch(html)
	queryMatch := typesenseQueryPattern.FindStringSubmatch(html)
	indexMatch := typesenseIndexPattern.FindStringSubmatch(html)
	if apiMatch == nil || nodeMatch == nil || queryMatch == nil || indexMatch == nil {
		return nil, false
	}

	port, err := strconv.Atoi(nodeMatch[2])
	if err != nil {
		return nil, false
	}

	cfg := &TypesenseConfig{
		APIKey:      strings.TrimSpace(apiMatch[1]),
		Host:        strings.TrimSpace(nodeMatch[1]),
		Port:        port,
		Protocol:    strings.TrimSpace(nodeMatch[3]),
		IndexName:   strings.TrimSpace(indexMatch[1]),
		QueryBy:     strings.TrimSpace(queryMatch[1]),
		HitsPerPage: defaultTypesenseHitsPerPage,
	}
	if m := typesenseCondPattern.FindStringSubmatch(html); m != nil {
		cfg.Condition = strings.TrimSpace(m[1])
	}
	if m := typesenseHitsPattern.FindStringSubmatch(html); m != nil {
		if hits, err := strconv.Atoi(m[1]); err == nil && hits > 0 {
			cfg.HitsPerPage = hits
		}
	}
	return cfg, true
}

// Endpoint returns the multi_search URL for this node.
func (c *TypesenseConfig) Endpoint() string {
	return fmt.Sprintf("%s://%s:%d/multi_search?use_cache=true", c.Protocol, c.Host, c.Port)
}

// SearchBody builds the multi_search payload, filtering on the page's own
// condition plus the requested model.
func (c *TypesenseConfig) SearchBody(model string) map[string]any {
	search := map[string]any{
		"collection": c.IndexName,
		"q":          "",
		"query_by":   c.QueryBy,
		"per_page":   c.HitsPerPage,
	}

	var filters []string
	if c.Condition != "" {
		filters = append(filters, "condition:="+quoteTypesenseValue(c.Condition))
	}
	if model != "" {
		filters = append(filters, "model:="+quoteTypesenseValue(model))
	}
	if len(filters) > 0 {
		search["filter_by"] = strings.Join(filters, " && ")
	}

	return map[string]any{"searches": []any{search}}
}

func quoteTypesenseValue(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// ParseTypesenseHits maps a multi_search response to rows. Relative VDP
// links resolve against the scraped page's origin, falling back to the
// dealer URL carried inside the document.
func ParseTypesenseHits(body []byte, pageURL string) ([]models.ParsedRow, error) {
	var payload struct {
		Results []struct {
			Hits []struct {
				Document map[string]any `json:"document"`
			} `json:"hits"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	var rows []models.ParsedRow
	for _, result := range payload.Results {
		for _, hit := range result.Hits {
			doc := hit.Document
			if doc == nil {
				continue
			}
			vin := strings.ToUpper(stringField(doc, "vin"))
			if vin == "" {
				continue
			}

			var dealerURL string
			if dealer, ok := doc["dealer"].(map[string]any); ok {
				dealerURL = stringField(dealer, "url")
			}

			row := models.ParsedRow{
				VIN: vin,
				AdvertisedPrice: firstNonZeroDecimal(
					doc["finalPrice"], doc["advertisedPrice"], doc["sellingPrice"]),
				MSRP:          coerceDecimal(doc["msrp"]),
				Status:        typesenseStatus(doc),
				VDPURL:        normalizeVDPURL(stringField(doc, "vdpUrl"), pageURL, dealerURL),
				StockNumber:   stringField(doc, "stockNumber"),
				Make:          stringField(doc, "make"),
				Model:         stringField(doc, "model"),
				Year:          coerceYear(doc["year"]),
				Trim:          stringField(doc, "trim"),
				ExteriorColor: stringField(doc, "exteriorColor"),
				InteriorColor: stringField(doc, "interiorColor"),
			}
			if images, ok := doc["imageUrls"].([]any); ok && len(images) > 0 {
				if first, ok := images[0].(string); ok {
					row.ImageURL = first
				}
			}
			if features, ok := doc["features"].([]any); ok && len(features) > 0 {
				row.Features = features
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func typesenseStatus(doc map[string]any) string {
	if flags, ok := doc["flags"].(map[string]any); ok {
		if sold, ok := flags["hasSoldVehicles"].(bool); ok && sold {
			return models.ListingStatusSold
		}
		if transit, ok := flags["inTransit"].(bool); ok && transit {
			return models.ListingStatusInTransit
		}
	}
	status := stringField(doc, "status")
	if status == "" {
		status = stringField(doc, "condition")
	}
	upper := strings.ToUpper(status)
	switch {
	case strings.Contains(upper, "TRANSIT"):
		return models.ListingStatusInTransit
	case strings.Contains(upper, "SOLD"):
		return models.ListingStatusSold
	}
	return models.ListingStatusAvailable
}

// normalizeVDPURL makes a document's VDP link absolute. The page origin is
// the preferred base; documents from shared indexes carry their own dealer
// URL as a fallback.
func normalizeVDPURL(raw, pageURL, dealerURL string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}

	base := ""
	if parsed, err := url.Parse(pageURL); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		base = parsed.Scheme + "://" + parsed.Host
	} else if dealerURL != "" {
		dealer := strings.TrimSpace(dealerURL)
		if !strings.HasPrefix(dealer, "http") {
			dealer = "https://" + strings.TrimLeft(dealer, "/")
		}
		base = strings.TrimRight(dealer, "/")
	}
	if base == "" {
		return raw
	}
	return base + "/" + strings.TrimLeft(raw, "/")
}

// firstNonZeroDecimal coerces candidates in order and returns the first
// usable price. Zeroes mean "call for price" in these feeds and are skipped.
func firstNonZeroDecimal(candidates ...any) *decimal.Decimal {
	for _, candidate := range candidates {
		if d := coerceDecimal(candidate); d != nil && !d.IsZero() {
			return d
		}
	}
	return nil
}
