package parsers

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
)

const smartPathPerPage = 250

var (
	smartPathAPIKeyPattern = regexp.MustCompile(`apiKey:\s*['"]([^'"]+)['"]`)
	smartPathHostPattern   = regexp.MustCompile(`host:\s*['"]([^'"]+)['"]`)
	smartPathIndexPattern  = regexp.MustCompile(`var\s+indexName\s*=\s*['"]([^'"]+)['"]`)
	smartPathIndexFallback = regexp.MustCompile(`vehicles-[A-Za-z0-9]+`)
)

// smartPathModels normalizes model spellings seen in SmartPath URLs to the
// catalog form used in Typesense filter values.
var smartPathModels = map[string]string{
	"4runner":      "4Runner",
	"4 runner":     "4Runner",
	"tacoma":       "Tacoma",
	"tundra":       "Tundra",
	"land cruiser": "Land Cruiser",
	"land-cruiser": "Land Cruiser",
}

// SmartPathPage carries the Typesense access details a SmartPath SRP embeds,
// plus the dealer host and model filter recovered from its canonical URL.
type SmartPathPage struct {
	APIKey      string
	Host        string
	IndexName   string
	DealerHost  string
	ModelFilter string
}

// ExtractSmartPathPage reads Typesense configuration out of SmartPath markup.
// Failures return *SmartPathError, which sends the orchestrator down its
// candidate-URL fallback sweep.
func ExtractSmartPathPage(markup string) (*SmartPathPage, error) {
	apiMatch := smartPathAPIKeyPattern.FindStringSubmatch(markup)
	hostMatch := smartPathHostPattern.FindStringSubmatch(markup)

	indexName := ""
	if m := smartPathIndexPattern.FindStringSubmatch(markup); m != nil {
		indexName = m[1]
	} else if m := smartPathIndexFallback.FindString(markup); m != "" {
		indexName = m
	}

	if apiMatch == nil || hostMatch == nil || indexName == "" {
		return nil, &SmartPathError{Reason: "no typesense configuration in markup"}
	}

	dealerHost := extractSmartPathDealerHost(markup)
	if dealerHost == "" {
		return nil, &SmartPathError{Reason: "cannot determine dealer host"}
	}

	return &SmartPathPage{
		APIKey:      apiMatch[1],
		Host:        hostMatch[1],
		IndexName:   indexName,
		DealerHost:  dealerHost,
		ModelFilter: extractSmartPathModel(markup),
	}, nil
}

// SearchURL returns the Typesense documents/search endpoint.
func (p *SmartPathPage) SearchURL() string {
	return fmt.Sprintf("https://%s/collections/%s/documents/search", p.Host, p.IndexName)
}

// SearchParams builds the documents/search query, always pinned to new
// inventory and narrowed to the page's model when one was recognized.
func (p *SmartPathPage) SearchParams() url.Values {
	filters := []string{"condition:='New'"}
	if p.ModelFilter != "" {
		filters = append(filters, fmt.Sprintf("model:='%s'", p.ModelFilter))
	}

	params := url.Values{}
	params.Set("q", "*")
	params.Set("query_by", "model")
	params.Set("per_page", fmt.Sprintf("%d", smartPathPerPage))
	params.Set("filter_by", strings.Join(filters, " && "))
	return params
}

// extractSmartPathDealerHost prefers the canonical link over og:url; the two
// disagree on SmartPath subdomain setups and canonical carries the real host.
func extractSmartPathDealerHost(markup string) string {
	for _, pattern := range []*regexp.Regexp{canonicalPattern, ogURLPattern} {
		m := pattern.FindStringSubmatch(markup)
		if m == nil {
			continue
		}
		if parsed, err := url.Parse(html.UnescapeString(m[1])); err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return ""
}

// extractSmartPathModel recovers the model filter from the page's canonical
// or og URL: explicit model query params (including encoded facet params)
// first, else the trailing path segment.
func extractSmartPathModel(markup string) string {
	var candidates []string
	for _, pattern := range []*regexp.Regexp{canonicalPattern, ogURLPattern} {
		m := pattern.FindStringSubmatch(markup)
		if m == nil {
			continue
		}
		parsed, err := url.Parse(html.UnescapeString(m[1]))
		if err != nil {
			continue
		}
		if parsed.RawQuery != "" {
			params, err := url.ParseQuery(parsed.RawQuery)
			if err != nil {
				continue
			}
			candidates = append(candidates, params["model"]...)
			for key, values := range params {
				if key != "model" && strings.Contains(key, "model") {
					candidates = append(candidates, values...)
				}
			}
		} else {
			segments := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
			if len(segments) > 0 {
				candidates = append(candidates, segments[len(segments)-1])
			}
		}
	}

	for _, candidate := range candidates {
		if normalized := normalizeSmartPathModel(candidate); normalized != "" {
			return normalized
		}
	}
	return ""
}

func normalizeSmartPathModel(value string) string {
	if value == "" {
		return ""
	}
	decoded := value
	if unescaped, err := url.QueryUnescape(value); err == nil {
		decoded = unescaped
	}
	decoded = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(decoded, "+", " ")))
	return smartPathModels[decoded]
}

// ParseSmartPathDocuments maps a documents/search response to rows. Rooted
// VDP paths are joined onto the dealer host.
func ParseSmartPathDocuments(body []byte, dealerHost string) ([]models.ParsedRow, error) {
	var payload struct {
		Hits []struct {
			Document map[string]any `json:"document"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	var rows []models.ParsedRow
	for _, hit := range payload.Hits {
		doc := hit.Document
		if doc == nil {
			continue
		}
		vin := stringField(doc, "vin")
		if vin == "" {
			vin = stringField(doc, "id")
		}
		vin = strings.ToUpper(vin)
		if vin == "" {
			continue
		}

		advertised := positiveCurrency(firstTruthy(doc, "finalPrice", "sellingPrice", "price"))
		if advertised == nil {
			advertised = positiveCurrency(doc["internetPrice"])
		}
		msrp := positiveCurrency(doc["msrp"])
		if msrp == nil {
			msrp = positiveCurrency(doc["price"])
		}

		status := models.ListingStatusAvailable
		if flags, ok := doc["flags"].(map[string]any); ok {
			if transit, ok := flags["inTransit"].(bool); ok && transit {
				status = models.ListingStatusInTransit
			}
		}

		vdp := stringField(doc, "vdpUrl")
		if strings.HasPrefix(vdp, "/") {
			vdp = "https://" + dealerHost + vdp
		}

		row := models.ParsedRow{
			VIN:             vin,
			AdvertisedPrice: advertised,
			MSRP:            msrp,
			Status:          status,
			VDPURL:          vdp,
			StockNumber:     stringField(doc, "stockNumber"),
			Model:           stringField(doc, "model"),
			Trim:            stringField(doc, "trim"),
			Year:            coerceYear(doc["year"]),
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
	return rows, nil
}

// firstTruthy returns the first key whose value would read as present:
// non-nil, non-empty string, non-zero number.
func firstTruthy(doc map[string]any, keys ...string) any {
	for _, key := range keys {
		switch value := doc[key].(type) {
		case nil:
			continue
		case string:
			if value != "" {
				return value
			}
		case float64:
			if value != 0 {
				return value
			}
		case bool:
			if value {
				return value
			}
		default:
			return value
		}
	}
	return nil
}
