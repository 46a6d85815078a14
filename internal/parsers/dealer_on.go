package parsers

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
)

var (
	taggingScriptPattern = regexp.MustCompile(`(?is)<script[^>]+id="dealeron_tagging_data"[^>]*>(.*?)</script>`)
	ogURLPattern         = regexp.MustCompile(`(?i)<meta[^>]+property="og:url"[^>]+content="([^"]+)"`)
	canonicalPattern     = regexp.MustCompile(`(?i)<link[^>]+rel="canonical"[^>]+href="([^"]+)"`)
)

const minCosmosPageSize = 12

// DealerOnPage is what a DealerOn SRP tells us about itself: the identifiers
// and host needed to call the Cosmos vehicles API for structured inventory.
type DealerOnPage struct {
	DealerID int
	PageID   int
	Host     string
	Query    string
	PageSize int

	// Empty marks a filtered SRP that DealerOn answered with an embedded
	// 404: a real page, legitimately holding zero vehicles.
	Empty bool
}

// ExtractDealerOnPage locates the dealeron_tagging_data script and the
// canonical host in SRP markup. Failures return *DealerOnError so the
// orchestrator can try its misclassification fingerprints.
func ExtractDealerOnPage(markup string) (*DealerOnPage, error) {
	tagging := extractTaggingData(markup)
	if tagging == nil {
		return nil, &DealerOnError{Reason: "no dealeron_tagging_data script in markup"}
	}

	dealerID, okDealer := taggingInt(tagging, "dealerId", "DealerId")
	pageID, okPage := taggingInt(tagging, "pageId", "PageId")
	if !okDealer || !okPage {
		return nil, &DealerOnError{Reason: "dealeron_tagging_data missing dealerId or pageId"}
	}

	host, query := extractHostAndQuery(markup)
	if host == "" {
		return nil, &DealerOnError{Reason: "cannot determine host from markup"}
	}

	page := &DealerOnPage{
		DealerID: dealerID,
		PageID:   pageID,
		Host:     host,
		Query:    query,
		PageSize: minCosmosPageSize,
	}

	if status, ok := tagging["statusCode"].(float64); ok && int(status) == 404 {
		page.Empty = true
		return page, nil
	}

	if items, ok := tagging["items"].([]any); ok && len(items) > minCosmosPageSize {
		page.PageSize = len(items)
	}
	return page, nil
}

// APIURL returns the Cosmos SRP vehicles endpoint for this page.
func (p *DealerOnPage) APIURL() string {
	return fmt.Sprintf("https://%s/api/vhcliaa/vehicle-pages/cosmos/srp/vehicles/%d/%d",
		p.Host, p.DealerID, p.PageID)
}

// APIParams builds the Cosmos query: paging plus every filter the SRP URL
// itself carried, with the page's filters winning on key collisions.
func (p *DealerOnPage) APIParams() url.Values {
	size := strconv.Itoa(p.PageSize)
	params := url.Values{}
	params.Set("host", p.Host)
	params.Set("PageNumber", "1")
	params.Set("PageSize", size)
	params.Set("displayCardsShown", size)

	if p.Query != "" {
		if passthrough, err := url.ParseQuery(p.Query); err == nil {
			for key, values := range passthrough {
				if len(values) > 0 {
					params.Set(key, values[len(values)-1])
				}
			}
		}
	}
	return params
}

func extractTaggingData(markup string) map[string]any {
	m := taggingScriptPattern.FindStringSubmatch(markup)
	if m == nil {
		return nil
	}
	var tagging map[string]any
	if err := json.Unmarshal([]byte(m[1]), &tagging); err != nil {
		return nil
	}
	return tagging
}

func taggingInt(tagging map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch value := tagging[key].(type) {
		case float64:
			return int(value), true
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return parsed, true
			}
			return 0, false
		}
	}
	return 0, false
}

// extractHostAndQuery reads the page's own URL from og:url, falling back to
// the canonical link. Some DealerOn themes entity-encode the query separator.
func extractHostAndQuery(markup string) (host, query string) {
	candidate := ""
	if m := ogURLPattern.FindStringSubmatch(markup); m != nil {
		candidate = m[1]
	} else if m := canonicalPattern.FindStringSubmatch(markup); m != nil {
		candidate = m[1]
	}
	if candidate == "" {
		return "", ""
	}

	decoded := html.UnescapeString(candidate)
	if strings.Contains(decoded, "%3F") && !strings.Contains(decoded, "?") {
		decoded = strings.Replace(decoded, "%3F", "?", 1)
	}
	parsed, err := url.Parse(decoded)
	if err != nil {
		return "", ""
	}
	return parsed.Host, parsed.RawQuery
}

// ParseCosmosResponse maps a Cosmos vehicles payload to rows. Relative photo
// and VDP paths are joined onto the page host.
func ParseCosmosResponse(body []byte, host string) ([]models.ParsedRow, error) {
	var payload struct {
		DisplayCards []struct {
			VehicleCard map[string]any `json:"VehicleCard"`
		} `json:"DisplayCards"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	var rows []models.ParsedRow
	for _, card := range payload.DisplayCards {
		vehicle := card.VehicleCard
		if vehicle == nil {
			continue
		}

		imageModel, _ := vehicle["VehicleImageModel"].(map[string]any)

		vin := stringField(vehicle, "VehicleVin")
		if vin == "" && imageModel != nil {
			vin = stringField(imageModel, "Vin")
		}
		vin = strings.ToUpper(strings.TrimSpace(vin))
		if vin == "" {
			continue
		}

		advertised := positiveNumber(vehicle["VehicleInternetPrice"])
		if advertised == nil {
			advertised = positiveNumber(vehicle["TaggingPrice"])
		}

		status := models.ListingStatusAvailable
		if truthy(vehicle["VehicleInTransit"]) || truthy(vehicle["VehicleInProduction"]) {
			status = models.ListingStatusInTransit
		}

		vdp := stringField(vehicle, "VehicleDetailUrl")
		if vdp == "" && imageModel != nil {
			vdp = stringField(imageModel, "VehicleDetailUrl")
		}
		if vdp != "" && !strings.HasPrefix(vdp, "http") {
			vdp = "https://" + host + vdp
		}

		image := ""
		if imageModel != nil {
			image = stringField(imageModel, "VehiclePhotoSrc")
			if image != "" && !strings.HasPrefix(image, "http") {
				image = "https://" + host + image
			}
		}

		rows = append(rows, models.ParsedRow{
			VIN:             vin,
			AdvertisedPrice: advertised,
			MSRP:            positiveNumber(vehicle["VehicleMsrp"]),
			Status:          status,
			VDPURL:          vdp,
			StockNumber:     stringField(vehicle, "VehicleStockNumber"),
			ImageURL:        image,
			Model:           stringField(vehicle, "VehicleModel"),
			Trim:            stringField(vehicle, "VehicleTrim"),
			Year:            coerceYear(vehicle["VehicleYear"]),
		})
	}
	return rows, nil
}

func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != "" && !strings.EqualFold(value, "false")
	}
	return false
}
