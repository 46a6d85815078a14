package parsers

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/lotwatch/internal/models"
)

var cdkConfig = heuristicConfig{
	statusRules: []statusRule{
		{"IN TRANSIT", models.ListingStatusInTransit},
		{"IN-TRANSIT", models.ListingStatusInTransit},
		{"IN ROUTE", models.ListingStatusInTransit},
		{"ARRIVING SOON", models.ListingStatusInTransit},
		{"SOLD", models.ListingStatusSold},
		{"AVAILABLE", models.ListingStatusAvailable},
		{"IN STOCK", models.ListingStatusAvailable},
		{"ON ORDER", models.ListingStatusInTransit},
	},
	priceKeywords: []priceKeyword{
		{"web price", 1},
		{"sale price", 1},
		{"dealer price", 2},
		{"your price", 2},
		{"price", 4},
	},
}

// ParseCDK reads CDK Global SRP markup.
func ParseCDK(content string) ([]models.ParsedRow, error) {
	return parseHeuristic(content, cdkConfig), nil
}

var (
	cdkEndpointPattern = regexp.MustCompile(`(?i)fetch\(\s*["']([^"']*/api/widget/ws-inv-data/getInventory[^"']*)["']`)
	cdkBodyPattern     = regexp.MustCompile(`(?i)body\s*:\s*decodeURI\(\s*["']([^"']+)["']\s*\)`)
)

// CDKRequest is the inventory API call a CDK page issues from script, captured
// so the same request can be replayed server-side.
type CDKRequest struct {
	Endpoint string
	Payload  map[string]any
}

// ExtractCDKRequest recovers the getInventory endpoint and its URI-encoded
// JSON body from page script. Absence of the pattern is not an error; the
// page simply has no replayable API call.
func ExtractCDKRequest(html string) (*CDKRequest, bool) {
	endpointMatch := cdkEndpointPattern.FindStringSubmatch(html)
	bodyMatch := cdkBodyPattern.FindStringSubmatch(html)
	if endpointMatch == nil || bodyMatch == nil {
		return nil, false
	}

	decoded, err := url.PathUnescape(bodyMatch[1])
	if err != nil {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, false
	}
	return &CDKRequest{Endpoint: endpointMatch[1], Payload: payload}, true
}

var cdkAdvertisedClasses = map[string]bool{
	"askingprice":   true,
	"internetprice": true,
	"finalprice":    true,
}

var cdkMSRPClasses = map[string]bool{
	"msrp":        true,
	"retailprice": true,
}

// ParseCDKResponse maps a getInventory JSON body to rows. Prices come from
// the pricing.dprice ladder: the first final-price entry wins the advertised
// slot and msrp/retailPrice entries win the MSRP slot, falling back to the
// flat pricing.retailPrice field.
func ParseCDKResponse(body []byte, baseURL string) ([]models.ParsedRow, error) {
	var payload struct {
		Inventory []map[string]any `json:"inventory"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	rows := make([]models.ParsedRow, 0, len(payload.Inventory))
	for _, entry := range payload.Inventory {
		vin, _ := entry["vin"].(string)
		vin = strings.ToUpper(strings.TrimSpace(vin))
		if vin == "" {
			continue
		}

		row := models.ParsedRow{
			VIN:         vin,
			Status:      cdkStatus(entry),
			StockNumber: stringField(entry, "stockNumber"),
			Model:       stringField(entry, "model"),
			Trim:        stringField(entry, "trim"),
			Make:        stringField(entry, "make"),
			Year:        coerceYear(entry["year"]),
		}

		if link := stringField(entry, "link"); link != "" {
			if strings.HasPrefix(link, "http") {
				row.VDPURL = link
			} else {
				row.VDPURL = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(link, "/")
			}
		}

		if pricing, ok := entry["pricing"].(map[string]any); ok {
			row.AdvertisedPrice, row.MSRP = cdkPrices(pricing)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cdkPrices(pricing map[string]any) (advertised, msrp *decimal.Decimal) {
	dprice, _ := pricing["dprice"].([]any)
	for _, raw := range dprice {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		value := coerceDecimal(item["value"])
		if value == nil {
			continue
		}
		typeClass := strings.ToLower(stringField(item, "typeClass"))
		isFinal, _ := item["isFinalPrice"].(bool)
		if advertised == nil && (isFinal || cdkAdvertisedClasses[typeClass]) {
			advertised = value
		}
		if msrp == nil && cdkMSRPClasses[typeClass] {
			msrp = value
		}
	}
	if msrp == nil {
		msrp = coerceDecimal(pricing["retailPrice"])
	}
	return advertised, msrp
}

func cdkStatus(entry map[string]any) string {
	if inTransit, ok := entry["inTransit"].(bool); ok && inTransit {
		return models.ListingStatusInTransit
	}
	if status := strings.ToUpper(stringField(entry, "status")); status != "" {
		if strings.Contains(status, "TRANSIT") {
			return models.ListingStatusInTransit
		}
		if strings.Contains(status, "SOLD") {
			return models.ListingStatusSold
		}
	}
	return models.ListingStatusAvailable
}
